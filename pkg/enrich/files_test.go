package enrich

import (
	"context"
	"testing"

	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

type fakeFiles struct {
	trees   int
	readmes int
}

func (f *fakeFiles) FetchTree(ctx context.Context, pkg, version string) (*model.FileNode, error) {
	f.trees++
	if pkg != "lodash" {
		return nil, integrations.ErrNotFound
	}
	return &model.FileNode{Path: "/", Type: model.NodeDirectory, Files: []model.FileNode{
		{Path: "/index.js", Type: model.NodeFile, Size: 10},
	}}, nil
}

func (f *fakeFiles) FetchReadme(ctx context.Context, pkg, version string) (string, string, error) {
	f.readmes++
	return "README.md", "# " + pkg, nil
}

func TestCachedFilesTree(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	inner := &fakeFiles{}
	files := NewCachedFiles(inner, store, nil)

	for range 3 {
		root, err := files.FetchTree(ctx, " LoDash ", "")
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := root.Stats(); n != 1 {
			t.Errorf("files = %d, want 1", n)
		}
	}
	if inner.trees != 1 {
		t.Errorf("upstream tree calls = %d, want 1", inner.trees)
	}

	if _, err := files.FetchTree(ctx, "lodash", "4.17.21"); err != nil {
		t.Fatal(err)
	}
	if inner.trees != 2 {
		t.Error("a pinned version is cached separately from latest")
	}

	if _, err := files.FetchTree(ctx, "missing", ""); err == nil {
		t.Error("expected an error for a missing package")
	}
	if st := store.Stats(ctx); st.Total != 2 {
		t.Errorf("cached entries = %d, want 2", st.Total)
	}
}

func TestCachedFilesReadmeNotCached(t *testing.T) {
	inner := &fakeFiles{}
	files := NewCachedFiles(inner, nil, nil)

	for range 2 {
		name, content, err := files.FetchReadme(context.Background(), "Lodash", "")
		if err != nil || name != "README.md" || content != "# lodash" {
			t.Fatalf("FetchReadme = %q, %q, %v", name, content, err)
		}
	}
	if inner.readmes != 2 {
		t.Errorf("readme calls = %d, want 2", inner.readmes)
	}
}
