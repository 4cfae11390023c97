package ctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

func runAudit(ctx context.Context, login loginFunc, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(out)
	actor := fs.String("actor", "", "filter by actor id")
	action := fs.String("action", "", "filter by action kind")
	from := fs.String("from", "", "events at or after this RFC3339 time")
	to := fs.String("to", "", "events before this RFC3339 time")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	if *actor != "" {
		q.Set("actor", *actor)
	}
	if *action != "" {
		q.Set("action", *action)
	}
	if *from != "" {
		q.Set("from", *from)
	}
	if *to != "" {
		q.Set("to", *to)
	}
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}

	client, err := login()
	if err != nil {
		return err
	}

	events, err := client.QueryAuditEvents(ctx, q)
	if err != nil {
		return err
	}

	for _, e := range events {
		fmt.Fprintln(out, formatAuditEvent(e))
	}
	fmt.Fprintf(out, "%d events\n", len(events))
	return nil
}

// formatAuditEvent renders one trail line:
//
//	2025-03-01T10:00:00Z record_create ok actor=doc-1 addr=10.0.0.5 {"record_id":"r1"}
func formatAuditEvent(e AuditEvent) string {
	actor := "-"
	if e.ActorID != nil {
		actor = *e.ActorID
	}
	status := "ok"
	if !e.Success {
		status = "FAIL"
	}
	line := fmt.Sprintf("%s %s %s actor=%s addr=%s",
		e.OccurredAt.UTC().Format(time.RFC3339), e.Action, status, actor, e.OriginAddr)
	if len(e.Detail) > 0 {
		line += " " + string(e.Detail)
	}
	return line
}
