package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// show prints one row per stored model. Sentinels print as "none".
func show(w io.Writer, store *fitstore.Store, only string) error {
	snap := store.Snapshot()
	names := store.Triggers()
	if only != "" {
		if _, ok := snap[only]; !ok {
			return fmt.Errorf("trigger %q not in store", only)
		}
		names = []string{only}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIGGER\tGROUP\tTYPE\tPOINTS\tMSE\tPARAMS")
	for _, name := range names {
		for _, group := range []string{types.CategoryL1.Group(), types.CategoryHLT.Group()} {
			models, ok := snap[name][group]
			if !ok {
				continue
			}
			if m, ok := models[types.ModelNone]; ok && len(models) == 1 {
				fmt.Fprintf(tw, "%s\t%s\tnone\t%d\t-\t-\n", name, group, m.Points)
				continue
			}
			for _, mt := range types.ModelTypes {
				m, ok := models[mt]
				if !ok {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					name, group, mt, m.Points, strconv.FormatFloat(m.MSE, 'g', 4, 64), params(m))
			}
		}
	}
	return tw.Flush()
}

func params(m types.FitModel) string {
	n := m.Type.NumParams()
	out := ""
	for i := 0; i < n && i < len(m.Params); i++ {
		if i > 0 {
			out += " "
		}
		out += strconv.FormatFloat(m.Params[i], 'g', 5, 64)
	}
	return out
}
