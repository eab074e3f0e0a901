package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and requeue dead-lettered outbox events",
	}
	cmd.AddCommand(dlqListCmd(), dlqRequeueCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	var (
		eventType string
		reason    string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := outbox.DLQFilter{Limit: limit}
			if eventType != "" {
				parsed, err := enums.ParseOutboxEventType(eventType)
				if err != nil {
					return err
				}
				filter.EventType = parsed
			}
			if reason != "" {
				filter.Reason = enums.OutboxDLQErrorReason(reason)
				if !filter.Reason.IsValid() {
					return fmt.Errorf("invalid reason %q", reason)
				}
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			rows, err := a.svcs.DLQ.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&reason, "reason", "", "filter by failure reason (max_attempts, non_retryable)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func dlqRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <event-id>",
		Short: "Move a dead-lettered event back into the outbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id: %w", err)
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			row, err := a.svcs.DLQ.Requeue(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			a.logg.Info(a.logg.WithFields(cmd.Context(), map[string]any{
				"event_id":   eventID.String(),
				"outbox_id":  row.ID.String(),
				"event_type": row.EventType,
			}), "dlq.requeued")
			return printJSON(cmd, map[string]any{
				"requeued":   true,
				"outbox_id":  row.ID,
				"event_type": row.EventType,
			})
		},
	}
}
