package geohive

import (
	"context"
	"fmt"
	"io"

	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/render"
	workerpool "github.com/i5heu/geohive/pkg/workerPool"
	"github.com/ulikunitz/xz"
)

// DumpOptions tunes Dump.
type DumpOptions struct {
	Flags render.Flags
	// Workers bounds how many datasets are rendered at once.
	Workers int
}

type datasetDump struct {
	Dataset render.Document `json:"dataset"`
	Places  []any           `json:"places"`
}

type ownerDump struct {
	Owner    render.Document `json:"owner"`
	Datasets []datasetDump   `json:"datasets"`
}

// Dump renders an owner and every one of its datasets with their places,
// and writes the result to w as xz-compressed JSON. Datasets keep their
// store order. A place that fails to render is written as an error marker.
func (g *GeoHive) Dump(ctx context.Context, owner string, w io.Writer, opts DumpOptions) error {
	st, err := g.Store()
	if err != nil {
		return err
	}
	r, err := g.Renderer()
	if err != nil {
		return err
	}

	o, err := st.OwnerByUsername(ctx, owner)
	if err != nil {
		return err
	}
	ownerDoc, err := r.RenderOne(ctx, o, opts.Flags)
	if err != nil {
		return err
	}
	datasets, err := st.Datasets(ctx, o.ID)
	if err != nil {
		return err
	}

	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: opts.Workers})
	defer wp.Close()

	room := workerpool.NewRoom[datasetDump](wp, len(datasets))
	for _, ds := range datasets {
		err := room.NewTaskWaitForFreeSlot(ctx, func(ctx context.Context) (datasetDump, error) {
			return g.dumpDataset(ctx, r, ds, opts.Flags)
		})
		if err != nil {
			return err
		}
	}

	out := ownerDump{Owner: ownerDoc, Datasets: make([]datasetDump, 0, len(datasets))}
	for i, res := range room.Collect() {
		if res.Err != nil {
			return fmt.Errorf("dataset %s: %w", datasets[i].Slug, res.Err)
		}
		out.Datasets = append(out.Datasets, res.Value)
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(xw).Encode(out); err != nil {
		_ = xw.Close()
		return fmt.Errorf("encode dump: %w", err)
	}
	if err := xw.Close(); err != nil {
		return err
	}

	g.log.WithField("owner", owner).WithField("datasets", len(out.Datasets)).Info("dump written")
	return nil
}

func (g *GeoHive) dumpDataset(ctx context.Context, r *render.Renderer, ds model.Dataset, flags render.Flags) (datasetDump, error) {
	st, err := g.Store()
	if err != nil {
		return datasetDump{}, err
	}
	doc, err := r.RenderOne(ctx, ds, flags)
	if err != nil {
		return datasetDump{}, err
	}
	places, err := st.Places(ctx, ds.ID)
	if err != nil {
		return datasetDump{}, err
	}

	entities := make([]model.Entity, 0, len(places))
	for _, p := range places {
		if p.Visible || flags.IncludeInvisible {
			entities = append(entities, p)
		}
	}
	items := r.RenderMany(ctx, entities, flags)
	docs := make([]any, len(items))
	for i, it := range items {
		if it.Err != nil {
			docs[i] = map[string]string{"error": it.Err.Error()}
			continue
		}
		docs[i] = it.Doc
	}
	return datasetDump{Dataset: doc, Places: docs}, nil
}
