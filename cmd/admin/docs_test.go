package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
)

const (
	alice = "6a1f8d8e-2b54-4d76-9a3e-2f6f1d6f7a01"
	bob   = "0c2d1e5b-7c1f-4b9a-8d2e-3a4b5c6d7e02"
	carol = "9f8e7d6c-5b4a-4392-8170-6f5e4d3c2b03"
)

func TestCheckDocs(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	_ = store.Put(ctx, docstore.DocSafeZones, []byte(`{
	  "overworld": {"centerX": 0, "centerZ": 0, "radius": 50, "name": "Spawn", "createdBy": "op"},
	  "nether": {"minX": -5, "minY": 0, "minZ": -5, "maxX": 5, "maxY": 64, "maxZ": 5, "name": "Hub", "createdBy": "op"}
	}`))
	_ = store.Put(ctx, docstore.DocTrust, []byte(`{
	  "`+alice+`": ["`+bob+`", "`+carol+`"],
	  "`+bob+`": ["`+alice+`"],
	  "not-a-uuid": ["`+alice+`"]
	}`))

	r, err := checkDocs(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("checkDocs: %v", err)
	}
	if r.Zones != 2 || r.Migrated != 1 {
		t.Fatalf("zones = %d migrated = %d", r.Zones, r.Migrated)
	}
	if r.TrustEdges != 3 || r.TrustSkipped != 1 {
		t.Fatalf("edges = %d skipped = %d", r.TrustEdges, r.TrustSkipped)
	}
	if len(r.Asymmetric) != 1 || r.Asymmetric[0].From.String() != alice || r.Asymmetric[0].To.String() != carol {
		t.Fatalf("asymmetric = %+v", r.Asymmetric)
	}

	// Checking never rewrites the stored document.
	raw, _ := store.Get(ctx, docstore.DocSafeZones)
	if !strings.Contains(string(raw), "centerX") {
		t.Fatalf("legacy document was rewritten: %s", raw)
	}
}

func TestCall_PrintsBodyAndFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/v1/reconcile" && r.Method == http.MethodPost {
			_, _ = rw.Write([]byte(`{"ok":true,"repaired":2}`))
			return
		}
		http.Error(rw, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	old := baseURL
	baseURL = srv.URL
	defer func() { baseURL = old }()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	if err := call(cmd, http.MethodPost, "/admin/v1/reconcile", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out.String(), `"repaired":2`) {
		t.Fatalf("output = %q", out.String())
	}
	if err := call(cmd, http.MethodGet, "/admin/v1/state", nil); err == nil {
		t.Fatalf("expected an error for 403")
	}
}
