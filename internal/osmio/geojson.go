package osmio

import (
	"fmt"
	"io"
	"os"

	geojson "github.com/paulmach/go.geojson"

	"github.com/wegman-software/osmconflate/internal/decide"
)

// FeatureCollection converts output features to GeoJSON. Tags become
// properties; the decision itself is kept under "@"-prefixed keys.
func FeatureCollection(features []decide.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		coords := make([][]float64, len(f.Line))
		for i, p := range f.Line {
			coords[i] = []float64{p.Lon(), p.Lat()}
		}

		gf := geojson.NewLineStringFeature(coords)
		gf.ID = fmt.Sprintf("%s/%d", f.Origin, f.ID)
		for _, k := range f.TagKeys() {
			gf.SetProperty(k, f.Tags[k])
		}
		gf.SetProperty("@id", f.ID)
		gf.SetProperty("@origin", f.Origin.String())
		gf.SetProperty("@action", string(f.Action))
		gf.SetProperty("@state", f.State.String())
		if len(f.Sources) > 0 {
			gf.SetProperty("@sources", f.Sources)
		}
		fc.AddFeature(gf)
	}
	return fc
}

// WriteGeoJSON writes the features as a GeoJSON feature collection
func WriteGeoJSON(out io.Writer, features []decide.Feature) error {
	data, err := FeatureCollection(features).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// WriteGeoJSONFile writes the features to a GeoJSON file
func WriteGeoJSONFile(path string, features []decide.Feature) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteGeoJSON(f, features); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
