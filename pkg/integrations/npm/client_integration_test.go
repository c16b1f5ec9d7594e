//go:build integration

package npm

import (
	"context"
	"testing"
	"time"

	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

func TestFetchPackage_Integration(t *testing.T) {
	client := NewClient(integrations.NewClient(nil), "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		{"express", "express", false},
		{"lodash", "lodash", false},
		{"scoped", "@babel/core", false},
		{"nonexistent", "this-package-should-not-exist-12345", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := client.FetchPackage(ctx, tt.pkg, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("FetchPackage(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if pkg.Name == "" || pkg.Version == "" {
					t.Errorf("identity should not be empty: %+v", pkg)
				}
				if pkg.TarballURL == "" {
					t.Error("tarball URL should not be empty")
				}
			}
		})
	}
}

func TestDownloads_Integration(t *testing.T) {
	client := NewClient(integrations.NewClient(nil), "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	counts, err := client.Downloads(ctx, "lodash", model.DefaultPeriods)
	if err != nil {
		t.Fatalf("Downloads() error: %v", err)
	}
	if counts[model.PeriodLastWeek] == 0 {
		t.Error("lodash should have weekly downloads")
	}
}
