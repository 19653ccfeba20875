package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// Теги constraint у моделей должны совпадать с каталогом Relations
func TestRelationsMatchConstraintTags(t *testing.T) {
	cache := &sync.Map{}
	for _, rel := range Relations {
		s, err := schema.Parse(rel.Model, cache, schema.NamingStrategy{})
		require.NoError(t, err)

		r, ok := s.Relationships.Relations[rel.Field]
		require.True(t, ok, "%s.%s: relation not found", s.Name, rel.Field)

		c := r.ParseConstraint()
		require.NotNil(t, c, "%s.%s: no constraint", s.Name, rel.Field)
		assert.Equal(t, string(rel.OnDelete), c.OnDelete, "%s.%s", s.Name, rel.Field)
	}
}

func TestPaymentUserIsNullable(t *testing.T) {
	s, err := schema.Parse(&Payment{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	f := s.LookUpField("UserID")
	require.NotNil(t, f)
	assert.False(t, f.NotNull)
}
