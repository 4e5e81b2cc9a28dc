package tree

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	require.Equal(t, "Region A", Sanitize("Region A"))
	require.Equal(t, "NCR_Manila", Sanitize("NCR/Manila"))
	require.Equal(t, "a__b", Sanitize("a//b"))
}

func TestPathChildDoesNotAlias(t *testing.T) {
	root := Path{}.Child("PHILIPPINES")
	left := root.Child("Region A")
	right := root.Child("Region/B")

	if diff := cmp.Diff(Path{"PHILIPPINES"}, root); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(Path{"PHILIPPINES", "Region A"}, left); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(Path{"PHILIPPINES", "Region_B"}, right); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 2, left.Depth())
}

func TestPathFile(t *testing.T) {
	p := Path{"A", "B", "C"}
	require.Equal(
		t,
		filepath.Join("data", "A", "B", "C", "x_y.json"),
		p.File("data", "x/y"),
	)
	require.Equal(t, filepath.Join("data", "A", "B", "C"), p.Dir("data"))
	require.Equal(t, filepath.Join("data", "root.json"), Path{}.File("data", "root"))
}

func TestLevels(t *testing.T) {
	require.Equal(t, LevelRegion, LevelRoot.Next())
	require.Equal(t, LevelContest, LevelPrecinct.Next())
	require.Equal(t, LevelContest, LevelContest.Next())
	require.Equal(t, "barangay", LevelBarangay.String())
	require.Equal(t, "unknown", Level(42).String())
}

func TestParseNode(t *testing.T) {
	node, err := ParseNode([]byte(`{
		"name": "PRECINCT 1",
		"extra": {"ignored": true},
		"subRegions": {
			"b": {"name": "B", "url": "/b.json"},
			"a": {"name": "A", "url": "/a.json"}
		},
		"contests": [{"url": "/c1.json"}, {"url": "/c2.json"}]
	}`))
	require.NoError(t, err)
	require.Equal(t, "PRECINCT 1", node.Name)
	require.Len(t, node.Contests, 2)

	expected := []Descriptor{
		{Name: "A", Url: "/a.json"},
		{Name: "B", Url: "/b.json"},
	}
	if diff := cmp.Diff(expected, node.Children()); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"a", "b"}, node.Keys())

	_, err = ParseNode([]byte("<html>not yet</html>"))
	require.Error(t, err)
}
