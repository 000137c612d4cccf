package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/jibledger/internal/domain"
)

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// parseShares parses PARTY=PERCENT pairs.
func parseShares(values []string) ([]domain.WorkingInterest, error) {
	interests := make([]domain.WorkingInterest, 0, len(values))
	for _, v := range values {
		party, pct, ok := strings.Cut(v, "=")
		if !ok || party == "" {
			return nil, fmt.Errorf("invalid share %q, expected PARTY=PERCENT", v)
		}
		percent, err := decimal.NewFromString(pct)
		if err != nil {
			return nil, fmt.Errorf("invalid percent in %q: %w", v, err)
		}
		interests = append(interests, domain.WorkingInterest{PartyID: party, Percent: percent})
	}
	return interests, nil
}

// allocateCmd previews an allocation locally without calling the API.
func allocateCmd() *cobra.Command {
	var (
		total    string
		currency string
		shares   []string
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Preview how an amount splits across working interests",
		Example: `  jibctl allocate --total 1000 --currency USD --share A=60 --share B=25 --share C=15`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(total)
			if err != nil {
				return fmt.Errorf("invalid total: %w", err)
			}
			interests, err := parseShares(shares)
			if err != nil {
				return err
			}

			seeds, err := domain.Allocate(amount, currency, domain.WorkingInterestSet{Interests: interests}, time.Now().UTC())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PARTY\tPERCENT\tAMOUNT")
			for _, s := range seeds {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", truncate(s.PartyID, 24), s.WorkingInterestPercent.String(), s.Amount.StringFixed(amountScale(currency)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&total, "total", "", "Amount to allocate")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringArrayVar(&shares, "share", nil, "Working interest as PARTY=PERCENT (repeatable)")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("share")
	return cmd
}

func amountScale(currency string) int32 {
	scale, err := domain.CurrencyScale(currency)
	if err != nil {
		return 2
	}
	return scale
}

func cashCallCmd(opts *options) *cobra.Command {
	var body struct {
		Code        string `json:"code,omitempty"`
		ContractID  string `json:"contract_id"`
		Currency    string `json:"currency"`
		TotalAmount string `json:"total_amount"`
		CallDate    string `json:"call_date"`
		DueDate     string `json:"due_date"`
	}

	cmd := &cobra.Command{
		Use:   "cash-call",
		Short: "Create a cash call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := newAPIClient(opts).post("/api/v1/cash-calls", body, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}

	cmd.Flags().StringVar(&body.Code, "code", "", "Ledger code (generated when empty)")
	cmd.Flags().StringVar(&body.ContractID, "contract", "", "Contract id")
	cmd.Flags().StringVar(&body.Currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringVar(&body.TotalAmount, "total", "", "Amount requested")
	cmd.Flags().StringVar(&body.CallDate, "call-date", time.Now().UTC().Format(time.DateOnly), "Call date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&body.DueDate, "due-date", "", "Due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("total")
	_ = cmd.MarkFlagRequired("due-date")
	return cmd
}

func jibCmd(opts *options) *cobra.Command {
	var (
		code, contract, currency, billingDate, dueDate string
		items                                          []string
	)

	cmd := &cobra.Command{
		Use:     "jib",
		Short:   "Create a JIB statement",
		Example: `  jibctl jib --contract K-7 --item "rig day rate=12500.00" --item "mud=830.25" --due-date 2024-07-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type lineItem struct {
				Description string `json:"description"`
				Amount      string `json:"amount"`
			}
			lineItems := make([]lineItem, 0, len(items))
			for _, item := range items {
				desc, amount, ok := strings.Cut(item, "=")
				if !ok {
					return fmt.Errorf("invalid item %q, expected DESCRIPTION=AMOUNT", item)
				}
				lineItems = append(lineItems, lineItem{Description: desc, Amount: amount})
			}

			raw, err := newAPIClient(opts).post("/api/v1/jib-statements", map[string]any{
				"code":         code,
				"contract_id":  contract,
				"currency":     currency,
				"line_items":   lineItems,
				"billing_date": billingDate,
				"due_date":     dueDate,
			}, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Ledger code (generated when empty)")
	cmd.Flags().StringVar(&contract, "contract", "", "Contract id")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringArrayVar(&items, "item", nil, "Line item as DESCRIPTION=AMOUNT (repeatable)")
	cmd.Flags().StringVar(&billingDate, "billing-date", time.Now().UTC().Format(time.DateOnly), "Billing date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "Due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("due-date")
	return cmd
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	simple := func(use, short, method, suffix string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " LEDGER_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client := newAPIClient(opts)
				path := "/api/v1/ledgers/" + url.PathEscape(args[0]) + suffix
				var (
					raw json.RawMessage
					err error
				)
				if method == "POST" {
					raw, err = client.post(path, nil, "")
				} else {
					raw, err = client.get(path)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), raw)
			},
		}
	}

	var contract, kind string
	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List ledgers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if contract != "" {
				q.Set("contract_id", contract)
			}
			if kind != "" {
				q.Set("kind", kind)
			}
			q.Set("limit", fmt.Sprint(limit))
			q.Set("offset", fmt.Sprint(offset))

			raw, err := newAPIClient(opts).get("/api/v1/ledgers?" + q.Encode())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	listCmd.Flags().StringVar(&contract, "contract", "", "Filter by contract id")
	listCmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (CASH_CALL or JIB)")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	cmd.AddCommand(
		simple("get", "Show a ledger with its obligations", "GET", ""),
		simple("send", "Send a draft ledger to its partners", "POST", "/send"),
		simple("status", "Show the aggregate status", "GET", "/status"),
		simple("verify", "Check that the stored status matches the obligations", "GET", "/verify"),
		listCmd,
	)
	return cmd
}

func obligationPath(ledgerID, partyID, action string) string {
	return "/api/v1/ledgers/" + url.PathEscape(ledgerID) + "/obligations/" + url.PathEscape(partyID) + "/" + action
}

func settlementCmd(opts *options, use, short, action string) *cobra.Command {
	var (
		amount, ref, valueDate string
		allowOverpayment       bool
	)

	cmd := &cobra.Command{
		Use:   use + " LEDGER_ID PARTY_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"amount": amount}
			if ref != "" {
				body["external_reference"] = ref
			}
			if valueDate != "" {
				body["value_date"] = valueDate
			}
			if allowOverpayment {
				body["allow_overpayment"] = true
			}

			raw, err := newAPIClient(opts).post(obligationPath(args[0], args[1], action), body, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Amount received")
	cmd.Flags().StringVar(&ref, "ref", "", "External reference (wire or check number)")
	cmd.Flags().StringVar(&valueDate, "value-date", "", "Value date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&allowOverpayment, "allow-overpayment", false, "Accept amounts above the outstanding balance")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func disputeCmd(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "dispute LEDGER_ID PARTY_ID",
		Short: "Open a dispute on a partner's obligation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newAPIClient(opts).post(obligationPath(args[0], args[1], "dispute"), map[string]string{"reason": reason}, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the partner disputes the amount")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func resolveCmd(opts *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resolve LEDGER_ID PARTY_ID",
		Short: "Close a dispute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newAPIClient(opts).post(obligationPath(args[0], args[1], "resolve"), map[string]string{"reason": note}, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Resolution note")
	return cmd
}

func defaultCmd(opts *options) *cobra.Command {
	var penalty string
	cmd := &cobra.Command{
		Use:   "default LEDGER_ID PARTY_ID",
		Short: "Mark a partner as defaulted after the due date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if penalty != "" {
				body["penalty_amount"] = penalty
			}
			raw, err := newAPIClient(opts).post(obligationPath(args[0], args[1], "default"), body, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&penalty, "penalty", "", "Optional penalty amount")
	return cmd
}

func auditCmd(opts *options) *cobra.Command {
	var actor, resourceID string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"limit": {fmt.Sprint(limit)}}
			if actor != "" {
				q.Set("actor_id", actor)
			}
			if resourceID != "" {
				q.Set("resource_id", resourceID)
			}
			raw, err := newAPIClient(opts).get("/api/v1/audit?" + q.Encode())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&actor, "by", "", "Filter by actor")
	cmd.Flags().StringVar(&resourceID, "resource", "", "Filter by ledger or obligation id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	return cmd
}
