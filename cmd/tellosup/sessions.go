package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/tellosup/internal/storage"
)

func listSessions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.List(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tLINK\tSTARTED\tLENGTH\tRECORDS\tGAINS")
	for _, s := range sessions {
		length := "-"
		if !s.Ended.IsZero() {
			length = s.Ended.Sub(s.Started).Round(100 * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%g/%g/%g\n",
			s.ID,
			s.Mode,
			s.Link,
			humanize.Time(s.Started),
			length,
			humanize.Comma(int64(s.Records)),
			s.Kp, s.Ki, s.Kd,
		)
	}
	return w.Flush()
}

func plotSession(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	sess, err := st.Load(ctx, args[0])
	if err != nil {
		return err
	}
	records, err := st.Records(ctx, args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no telemetry to plot")
	}

	fmt.Printf("session: %s\n", sess.ID)
	fmt.Printf("started: %s (%s)\n", sess.Started.Format("2006-01-02 15:04:05"), humanize.Time(sess.Started))
	fmt.Printf("samples: %s\n\n", humanize.Comma(int64(len(records))))

	for _, name := range fields {
		data := make([]float64, 0, len(records))
		for _, r := range records {
			if v, ok := r.Snapshot.Field(name); ok {
				data = append(data, v)
			}
		}
		if len(data) == 0 {
			fmt.Printf("no values for field %q\n\n", name)
			continue
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	sess, err := st.Load(ctx, args[0])
	if err != nil {
		return err
	}
	records, err := st.Records(ctx, args[0])
	if err != nil {
		return err
	}

	if err := storage.ExportJSON(outFile, *sess, records); err != nil {
		return err
	}
	if outFile != "-" {
		fmt.Fprintf(os.Stderr, "exported %s records to %s\n", humanize.Comma(int64(len(records))), outFile)
	}
	return nil
}
