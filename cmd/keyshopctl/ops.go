package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Match pending orders against the payment feed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if a.svcs.Payments == nil {
				return errors.New("payment feed not configured (KEYSHOP_PAYMENTS_FEED_URL)")
			}
			summary, err := a.svcs.Payments.ReconcilePending(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Expire overdue pending orders and release orphaned reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			expired, released, expireErr := a.svcs.Orders.ExpireOverdue(cmd.Context())
			orphaned, orphanErr := a.svcs.Orders.ReleaseOrphaned(cmd.Context())
			if err := printJSON(cmd, map[string]any{
				"expired":         expired,
				"units_released":  released,
				"orphans_cleared": orphaned,
			}); err != nil {
				return err
			}
			return errors.Join(expireErr, orphanErr)
		},
	}
}

func countsCmd() *cobra.Command {
	var sku string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show available/reserved/sold unit counts for a SKU",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			item, err := a.svcs.Catalog.Lookup(cmd.Context(), sku)
			if err != nil {
				return err
			}
			counts, err := a.svcs.Ledger.Counts(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"sku":       item.Code,
				"available": counts.Available,
				"reserved":  counts.Reserved,
				"sold":      counts.Sold,
				"total":     counts.Total(),
			})
		},
	}
	cmd.Flags().StringVar(&sku, "sku", "", "SKU code")
	_ = cmd.MarkFlagRequired("sku")
	return cmd
}

func tokenCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Reissue the delivery token of a fulfilled order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			order, err := a.svcs.OrdersRepo.FindByCode(cmd.Context(), strings.ToUpper(strings.TrimSpace(code)))
			if err != nil {
				return fmt.Errorf("load order %s: %w", code, err)
			}
			if order.Status != enums.OrderStatusFulfilled {
				return fmt.Errorf("order %s is %s, not fulfilled", order.OrderCode, order.Status)
			}
			token := a.svcs.Tokens.Issue(order.ID, order.CustomerEmail, time.Now().UTC())
			return printJSON(cmd, map[string]any{
				"order_code":     order.OrderCode,
				"delivery_token": token,
			})
		},
	}
	cmd.Flags().StringVar(&code, "order", "", "order code")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func finalizeCmd() *cobra.Command {
	var (
		code     string
		txn      string
		amount   int64
		note     string
		operator string
	)
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Finalize a pending order from manually verified payment evidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return errors.New("--amount must be positive")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			outcome, err := a.svcs.Orders.ManualFinalize(cmd.Context(), orders.ManualFinalizeInput{
				OrderCode:     strings.ToUpper(strings.TrimSpace(code)),
				TransactionID: strings.TrimSpace(txn),
				Amount:        amount,
				Note:          note,
				Operator:      operator,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"finalized":      outcome.Finalized,
				"order_code":     outcome.OrderCode,
				"status":         outcome.Status,
				"invoice_number": outcome.InvoiceNumber,
				"delivery_token": outcome.DeliveryToken,
			})
		},
	}
	cmd.Flags().StringVar(&code, "order", "", "order code")
	cmd.Flags().StringVar(&txn, "txn", "", "bank transaction id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount received")
	cmd.Flags().StringVar(&note, "note", "", "free-form evidence note")
	cmd.Flags().StringVar(&operator, "operator", "keyshopctl", "operator recorded on the payment evidence")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("txn")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ordersCmd() *cobra.Command {
	var input orders.ListInput
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			page, err := a.svcs.Orders.List(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		},
	}
	cmd.Flags().StringVar(&input.Status, "status", "", "filter by order status")
	cmd.Flags().StringVar(&input.Email, "email", "", "filter by customer email")
	cmd.Flags().StringVar(&input.Cursor, "cursor", "", "next_cursor from a previous page")
	cmd.Flags().IntVar(&input.Limit, "limit", 0, "page size")
	return cmd
}
