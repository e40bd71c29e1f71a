package store

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// The production connection goes through lib/pq, so unique-constraint
// violations arrive as raw *pq.Error with SQLSTATE 23505 and must be
// classified without help from gorm's error translation.
func TestIsDuplicateKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"raw pq unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped pq unique violation", fmt.Errorf("create room: %w", &pq.Error{Code: "23505"}), true},
		{"translated gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm sentinel", fmt.Errorf("create room: %w", gorm.ErrDuplicatedKey), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
		{"not found", gorm.ErrRecordNotFound, false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isDuplicateKey(tc.err))
		})
	}
}
