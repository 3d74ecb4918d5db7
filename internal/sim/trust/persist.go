package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
)

// Encode renders outbound edges as actor -> []peer, both in canonical order.
func (g *Graph) Encode() ([]byte, error) {
	doc := make(map[string][]string, len(g.edges))
	for from, set := range g.edges {
		if len(set) == 0 {
			continue
		}
		peers := make([]string, 0, len(set))
		for to := range set {
			peers = append(peers, to.String())
		}
		sort.Strings(peers)
		doc[from.String()] = peers
	}
	return json.Marshal(doc)
}

func (g *Graph) persist() {
	if g.saver == nil {
		return
	}
	b, err := g.Encode()
	if err != nil {
		g.log.Error("encode trust graph", zap.Error(err))
		return
	}
	g.saver.Save(docstore.DocTrust, b)
}

// Load replaces the edge set with the stored document. Malformed actor IDs
// and entries are skipped with a warning. Load does not reconcile.
func (g *Graph) Load(ctx context.Context, store docstore.Store) (edges int, skipped int, err error) {
	raw, err := store.Get(ctx, docstore.DocTrust)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if !gjson.ValidBytes(raw) {
		return 0, 0, errors.New("trust document is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return 0, 0, fmt.Errorf("trust document is %s, want object", root.Type)
	}

	loaded := map[actors.ID]map[actors.ID]struct{}{}
	root.ForEach(func(key, val gjson.Result) bool {
		from, perr := uuid.Parse(key.String())
		if perr != nil {
			g.log.Warn("skipping trust entry with malformed actor id", zap.String("id", key.String()))
			skipped++
			return true
		}
		if !val.IsArray() {
			g.log.Warn("skipping trust entry that is not a list", zap.Stringer("actor", from))
			skipped++
			return true
		}
		for _, item := range val.Array() {
			to, perr := uuid.Parse(item.String())
			if item.Type != gjson.String || perr != nil {
				g.log.Warn("skipping malformed trusted peer id", zap.Stringer("actor", from), zap.String("id", item.Raw))
				skipped++
				continue
			}
			if to == from {
				skipped++
				continue
			}
			set := loaded[from]
			if set == nil {
				set = map[actors.ID]struct{}{}
				loaded[from] = set
			}
			set[to] = struct{}{}
		}
		return true
	})

	g.edges = loaded
	return g.EdgeCount(), skipped, nil
}
