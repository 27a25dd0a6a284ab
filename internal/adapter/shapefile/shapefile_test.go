package shapefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	x, y  float64
	id    string
	vel   float64
	label string
}

// writeShapefile creates a point shapefile with id, vel, and label attributes.
func writeShapefile(t *testing.T, records []record) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "points")

	w, err := shp.Create(base+".shp", shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ID", 16),
		shp.FloatField("VEL", 12, 3),
		shp.StringField("LABEL", 16),
	}))

	for _, r := range records {
		row := int(w.Write(&shp.Point{X: r.x, Y: r.y}))
		require.NoError(t, w.WriteAttribute(row, 0, r.id))
		require.NoError(t, w.WriteAttribute(row, 1, r.vel))
		if r.label != "" {
			require.NoError(t, w.WriteAttribute(row, 2, r.label))
		}
	}
	w.Close()

	// The writer names the attribute table without the extension dot.
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	return base + ".shp"
}

func TestReadPoints(t *testing.T) {
	path := writeShapefile(t, []record{
		{x: 12.4924, y: 41.8902, id: "p1", vel: -12.5, label: "north"},
		{x: 12.4930, y: 41.8910, id: "p2", vel: -3.25},
		{x: -97.7431, y: 30.2672, id: "p3", vel: 1.0, label: "uplift"},
	})

	points, err := ReadPoints(path)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, "p1", points[0].ID)
	assert.InDelta(t, 12.4924, points[0].Lon, 1e-12)
	assert.InDelta(t, 41.8902, points[0].Lat, 1e-12)
	assert.Equal(t, -12.5, points[0].Properties["VEL"])
	assert.Equal(t, "north", points[0].Properties["LABEL"])

	assert.Equal(t, "p2", points[1].ID)
	assert.Equal(t, -3.25, points[1].Properties["VEL"])
	assert.NotContains(t, points[1].Properties, "LABEL", "empty attributes are omitted")

	assert.True(t, points[2].HasValidCoord())
	assert.Equal(t, 1.0, points[2].Properties["VEL"])
}

func TestReadPoints_Errors(t *testing.T) {
	_, err := ReadPoints(filepath.Join(t.TempDir(), "points.geojson"))
	require.ErrorIs(t, err, ErrNotShapefile)

	_, err = ReadPoints(filepath.Join(t.TempDir(), "missing.shp"))
	require.Error(t, err)
}

func TestAttributeValue(t *testing.T) {
	assert.Equal(t, -4.5, attributeValue('N', "-4.5"))
	assert.Equal(t, 2.0, attributeValue('F', "2.000"))
	assert.Equal(t, "abc", attributeValue('N', "abc"))
	assert.Equal(t, "-4.5", attributeValue('C', "-4.5"))
}

func TestIDFieldIndex(t *testing.T) {
	assert.Equal(t, 1, idFieldIndex([]string{"VEL", "Id"}))
	assert.Equal(t, 0, idFieldIndex([]string{"CODE", "LABEL"}))
	assert.Equal(t, -1, idFieldIndex([]string{"VEL"}))
}
