package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/entity"
)

func TestParseEntityClasses(t *testing.T) {
	reg := entity.NewRegistry()
	var resolved []string
	resolve := func(name string) (entity.InitFunc, error) {
		resolved = append(resolved, name)
		return func(ecs.EntityID, *entity.ClassInstance) error { return nil }, nil
	}

	n, err := ParseEntityClasses([]byte(`
classes:
  - name: ship
    init: init_ship
    properties:
      - {name: health, type: Integer, default: 100, networked: true}
      - {name: hull, type: floatsize3d, default: [4, 2, 8]}
      - {name: label, type: String}
`), reg, resolve)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"init_ship"}, resolved)

	ship, err := reg.Find("ship")
	require.NoError(t, err)
	assert.Equal(t, 3, ship.PropertyCount())
	assert.Equal(t, entity.Integer(100), ship.Property(0).Default)
	assert.True(t, ship.Property(0).Networked)
	assert.Equal(t, entity.FloatSize3D{4, 2, 8}, ship.Property(1).Default)
	assert.Equal(t, entity.String(""), ship.Property(2).Default)
}

func TestParseEntityClasses_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown type", `classes: [{name: a, properties: [{name: x, type: Quat}]}]`, entity.ErrUnknownPropertyType},
		{"bad default", `classes: [{name: a, properties: [{name: x, type: FloatPosition2D, default: [1]}]}]`, entity.ErrValueShape},
		{"duplicate property", `classes: [{name: a, properties: [{name: x, type: Bool}, {name: x, type: Bool}]}]`, entity.ErrDuplicateProperty},
		{"duplicate class", `classes: [{name: a}, {name: a}]`, entity.ErrDuplicateClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntityClasses([]byte(tt.doc), entity.NewRegistry(), nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	boom := errors.New("no such function")
	_, err := ParseEntityClasses([]byte(`classes: [{name: a, init: nope}]`), entity.NewRegistry(),
		func(string) (entity.InitFunc, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, err = ParseEntityClasses([]byte(`classes: [{name: a, init: nope}]`), entity.NewRegistry(), nil)
	assert.Error(t, err)
}

func TestLoadEntityClasses_Shipped(t *testing.T) {
	path := filepath.Join("..", "..", "data", "yaml", "entity_classes.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("entity_classes.yaml not present")
	}
	reg := entity.NewRegistry()
	noop := func(string) (entity.InitFunc, error) { return nil, nil }
	n, err := LoadEntityClasses(path, reg, noop)
	require.NoError(t, err)
	assert.Equal(t, reg.Len(), n)

	player, err := reg.Find("player")
	require.NoError(t, err)
	assert.NotEqual(t, entity.InvalidIndex, player.FindProperty("name"))
}
