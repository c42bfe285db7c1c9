package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PNWBNW/Proven-National-Worker/pkg/client"
)

func init() {
	employerCmd.AddCommand(employerShowCmd, payTaxCmd, penaltyCmd, fundCmd)
	approvalCmd.AddCommand(approvalOpenCmd, approvalApproveCmd)
	poolCmd.AddCommand(poolBalanceCmd, contributeCmd, approvalCmd)
	kycCmd.AddCommand(kycStatusCmd, kycVerifyCmd, kycRevokeCmd)
	payrollCmd.AddCommand(assignCmd, payrollShowCmd, pendingCmd)
	commitmentCmd.AddCommand(commitmentGetCmd, commitmentSetCmd)
	settleCmd.AddCommand(settlePayrollCmd, settlePendingCmd, settleWithdrawCmd, decideCmd, commitmentCmd)
	networkCmd.AddCommand(networkShowCmd, networkSetCmd)
	auditCmd.AddCommand(auditShowCmd, auditVerifyCmd, auditEntriesCmd)

	rootCmd.AddCommand(employerCmd, poolCmd, kycCmd, payrollCmd, settleCmd, networkCmd, auditCmd)
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

func printDecision(d *client.Decision) error {
	return printResult(d, func() {
		fmt.Printf("Outcome:  %s\n", d.Outcome)
		fmt.Printf("Reason:   %s\n", d.Reason)
		if d.Code != "" {
			fmt.Printf("Code:     %s\n", d.Code)
		}
		if d.Target != "" {
			fmt.Printf("Target:   %s\n", d.Target)
		}
		fmt.Printf("Audit:    #%d\n", d.AuditIndex)
	})
}

// ── employer ─────────────────────────────────────────────────────────────────

var employerCmd = &cobra.Command{
	Use:   "employer",
	Short: "Employer tax compliance and payroll funding",
}

var employerShowCmd = &cobra.Command{
	Use:   "show <employer-id>",
	Short: "Show an employer's standing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		st, err := c.Standing(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(st, func() {
			fmt.Printf("Employer:       %s\n", st.Account.ID)
			fmt.Printf("Taxes paid:     %d\n", st.Account.TaxesPaid)
			fmt.Printf("Compliant:      %t\n", st.Account.Compliant)
			fmt.Printf("Payroll funds:  %d\n", st.Account.PayrollFunds)
			fmt.Printf("Threshold:      %d (met: %t)\n", st.Threshold, st.MeetsThreshold)
		})
	},
}

var payTaxCmd = &cobra.Command{
	Use:   "pay-tax <employer-id> <amount>",
	Short: "Record a tax payment (government)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		total, err := c.RecordTaxPayment(ctx, args[0], amount)
		if err != nil {
			return err
		}
		return printResult(map[string]any{"employer_id": args[0], "taxes_paid": total}, func() {
			fmt.Printf("Recorded. %s has now paid %d.\n", args[0], total)
		})
	},
}

var penaltyCmd = &cobra.Command{
	Use:   "penalty <employer-id>",
	Short: "Enforce the non-compliance penalty (government)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		res, err := c.EnforcePenalty(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(res, func() { fmt.Println(res.Message) })
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund <employer-id> <funds>",
	Short: "Set an employer's payroll funds (employer)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		funds, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid funds %q", args[1])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		if err := c.UpdatePayrollFunding(ctx, args[0], funds); err != nil {
			return err
		}
		fmt.Printf("Payroll funds for %s set to %d.\n", args[0], funds)
		return nil
	},
}

// ── trust pool ───────────────────────────────────────────────────────────────

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Worker trust pool balances",
}

var poolBalanceCmd = &cobra.Command{
	Use:   "balance <worker-id>",
	Short: "Show a worker's trust pool balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		rec, err := c.Balance(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(rec, func() {
			fmt.Printf("%s: %d\n", rec.WorkerID, rec.TotalContributed)
		})
	},
}

var contributeCmd = &cobra.Command{
	Use:   "contribute <worker-id> <amount>",
	Short: "Contribute to a worker's trust pool (employer)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		rec, err := c.Contribute(ctx, args[0], amount)
		if err != nil {
			return err
		}
		return printResult(rec, func() {
			fmt.Printf("%s balance is now %d.\n", rec.WorkerID, rec.TotalContributed)
		})
	},
}

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Quorum approvals for partial withdrawals",
}

func printApproval(st *client.ApprovalStatus) error {
	return printResult(st, func() {
		fmt.Printf("Approval:  %s\n", st.Approval.ID)
		fmt.Printf("Worker:    %s (%d)\n", st.Approval.WorkerID, st.Approval.Amount)
		fmt.Printf("Approvers: %v\n", st.Approval.Approvers)
		fmt.Printf("Complete:  %t\n", st.Complete)
	})
}

var approvalOpenCmd = &cobra.Command{
	Use:   "open <worker-id> <amount>",
	Short: "Open an approval for a partial withdrawal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		ap, err := c.OpenApproval(ctx, args[0], amount)
		if err != nil {
			return err
		}
		return printApproval(&client.ApprovalStatus{Approval: *ap})
	},
}

var approvalApproveCmd = &cobra.Command{
	Use:   "approve <approval-id> [approver-id]",
	Short: "Approve as the logged-in operator (approver-id only in open mode)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		approver := ""
		if len(args) == 2 {
			approver = args[1]
		}
		st, err := c.Approve(ctx, args[0], approver)
		if err != nil {
			return err
		}
		return printApproval(st)
	},
}

// ── kyc ──────────────────────────────────────────────────────────────────────

var kycCmd = &cobra.Command{
	Use:   "kyc",
	Short: "Child identity KYC attestations",
}

var kycStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show whether an identity is KYC verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		ok, err := c.IsKYCVerified(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(map[string]any{"id": args[0], "verified": ok}, func() {
			fmt.Printf("%s verified: %t\n", args[0], ok)
		})
	},
}

var kycVerifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Record a KYC attestation (custodian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		rec, err := c.VerifyKYC(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(rec, func() {
			fmt.Printf("%s verified; attestation %s\n", rec.ID, rec.Attestation)
		})
	},
}

var kycRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a KYC attestation (custodian)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		if err := c.RevokeKYC(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s revoked.\n", args[0])
		return nil
	},
}

// ── payroll ──────────────────────────────────────────────────────────────────

var payrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Payroll assignments",
}

var assignCmd = &cobra.Command{
	Use:   "assign <worker-id> <employer-id> <amount>",
	Short: "Assign wages to a worker (employer)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		e, err := c.AssignPayroll(ctx, args[0], args[1], amount)
		if err != nil {
			return err
		}
		return printResult(e, func() {
			fmt.Printf("Entry %s: %d from %s to %s (%s)\n", e.ID, e.Amount, e.EmployerID, e.WorkerID, e.Status)
		})
	},
}

var payrollShowCmd = &cobra.Command{
	Use:   "show <worker-id>",
	Short: "Show a worker's payroll entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		e, err := c.PayrollEntry(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(e, func() { printEntries([]client.PayrollEntry{*e}) })
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending payroll entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		entries, err := c.PendingPayroll(ctx)
		if err != nil {
			return err
		}
		return printResult(entries, func() { printEntries(entries) })
	},
}

func printEntries(entries []client.PayrollEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tEMPLOYER\tAMOUNT\tSTATUS\tTX")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.WorkerID, e.EmployerID, e.Amount, e.Status, e.TxHash)
	}
	_ = w.Flush()
}

// ── settle ───────────────────────────────────────────────────────────────────

var (
	settleContract   string
	settleCommitment string
	settleProof      string
	withdrawKind     string
	withdrawChild    string
	withdrawApproval string
	withdrawProof    string
)

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Request settlement decisions",
}

var settlePayrollCmd = &cobra.Command{
	Use:   "payroll <worker-id>",
	Short: "Settle a worker's pending payroll entry (employer)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		req := client.PayrollRequest{
			WorkerID: args[0], ContractID: settleContract, Commitment: settleCommitment,
		}
		if settleProof != "" {
			b, err := os.ReadFile(settleProof)
			if err != nil {
				return fmt.Errorf("read proof: %w", err)
			}
			req.Proof = b
		}
		d, err := c.SettlePayroll(ctx, req)
		if err != nil {
			return err
		}
		return printDecision(d)
	},
}

var settlePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Settle every pending payroll entry in one batch (employer)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		entries, err := c.PendingPayroll(ctx)
		if err != nil {
			return err
		}
		reqs := make([]client.PayrollRequest, 0, len(entries))
		for _, e := range entries {
			reqs = append(reqs, client.PayrollRequest{WorkerID: e.WorkerID})
		}
		results, err := c.SettleBatch(ctx, reqs)
		if err != nil {
			return err
		}
		return printResult(results, func() {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKER\tOUTCOME\tCODE\tERROR")
			for _, r := range results {
				if r.Decision != nil {
					fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.WorkerID, r.Decision.Outcome, r.Decision.Code)
				} else {
					fmt.Fprintf(w, "%s\t\t\t%s\n", r.WorkerID, r.Error)
				}
			}
			_ = w.Flush()
		})
	},
}

var settleWithdrawCmd = &cobra.Command{
	Use:   "withdraw <worker-id> <amount>",
	Short: "Settle a trust pool withdrawal (custodian)",
	Long: `Settle a trust pool withdrawal.

Full redemption pays a KYC-verified child identity:

  pnwctl settle withdraw w1 2000 --kind full_redemption --child c1

Partial withdrawals need an approval with three approvers and a Merkle
inclusion proof of the approval set:

  pnwctl settle withdraw w1 500 --approval <id> --proof proof.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		req := client.WithdrawalRequest{
			WorkerID:   args[0],
			Amount:     amount,
			Kind:       withdrawKind,
			ChildID:    withdrawChild,
			ApprovalID: withdrawApproval,
		}
		if withdrawProof != "" {
			b, err := os.ReadFile(withdrawProof)
			if err != nil {
				return fmt.Errorf("read proof: %w", err)
			}
			req.Proof = b
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		d, err := c.SettleWithdrawal(ctx, req)
		if err != nil {
			return err
		}
		return printDecision(d)
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide <subject-id> <contract-id> <commitment>",
	Short: "Compare a commitment against the stored root",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		d, err := c.Decide(ctx, client.DecideRequest{SubjectID: args[0], ContractID: args[1], Commitment: args[2]})
		if err != nil {
			return err
		}
		return printDecision(d)
	},
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment",
	Short: "Contract commitment roots",
}

var commitmentGetCmd = &cobra.Command{
	Use:   "get <contract-id>",
	Short: "Show a contract's stored commitment root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		root, err := c.Commitment(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(map[string]string{"contract_id": args[0], "root": root}, func() {
			fmt.Println(root)
		})
	},
}

var commitmentSetCmd = &cobra.Command{
	Use:   "set <contract-id> <root>",
	Short: "Store a contract's commitment root (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		if err := c.UpdateCommitment(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Commitment for %s stored.\n", args[0])
		return nil
	},
}

func init() {
	settlePayrollCmd.Flags().StringVar(&settleContract, "contract", "", "contract whose commitment must match")
	settlePayrollCmd.Flags().StringVar(&settleCommitment, "commitment", "", "commitment root presented for --contract")
	settlePayrollCmd.Flags().StringVar(&settleProof, "proof", "", "file holding the worker's eligibility opening (not needed for registered workers)")

	settleWithdrawCmd.Flags().StringVar(&withdrawKind, "kind", client.WithdrawalPartialQuorum, "full_redemption or partial_quorum")
	settleWithdrawCmd.Flags().StringVar(&withdrawChild, "child", "", "child identity for full redemption")
	settleWithdrawCmd.Flags().StringVar(&withdrawApproval, "approval", "", "approval ID supplying the approvers")
	settleWithdrawCmd.Flags().StringVar(&withdrawProof, "proof", "", "file holding the approval-set inclusion proof")
}

// ── network ──────────────────────────────────────────────────────────────────

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Ledger network status",
}

func printNetwork(s *client.NetworkStatus) error {
	return printResult(s, func() {
		if !s.Observed {
			fmt.Println("No observation yet; presumed healthy.")
			return
		}
		fmt.Printf("Healthy:  %t\n", s.Healthy)
		fmt.Printf("Gas fee:  %d\n", s.GasFee)
		fmt.Printf("Latency:  %dms\n", s.LatencyMS)
		fmt.Printf("Observed: %s\n", s.ObservedAt.Format(time.RFC3339))
	})
}

var networkShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest network observation",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		s, err := c.Network(ctx)
		if err != nil {
			return err
		}
		return printNetwork(s)
	},
}

var networkSetCmd = &cobra.Command{
	Use:   "set <gas-fee> <latency>",
	Short: "Record a network observation (admin), e.g. 'set 40 120ms'",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fee, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid gas fee %q", args[0])
		}
		lat, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid latency %q: %w", args[1], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		s, err := c.UpdateNetwork(ctx, fee, lat)
		if err != nil {
			return err
		}
		return printNetwork(s)
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var (
	auditFrom  int
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tamper-evident audit log",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the audit chain length and head hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		o, err := c.AuditOverview(ctx)
		if err != nil {
			return err
		}
		return printResult(o, func() {
			fmt.Printf("Entries: %d\nRoot:    %s\n", o.Entries, o.Root)
		})
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-verify the audit hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		ok, err := c.VerifyAudit(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("audit chain is broken")
		}
		fmt.Println("Audit chain verified.")
		return nil
	},
}

var auditEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		entries, err := c.AuditEntries(ctx, auditFrom, auditLimit)
		if err != nil {
			return err
		}
		return printResult(entries, func() {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IDX\tTIME\tACTION\tSUBJECT\tACTOR\tOUTCOME\tCODE")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Index, e.Timestamp.Format(time.RFC3339), e.Action, e.SubjectID, e.Actor, e.Outcome, e.Code)
			}
			_ = w.Flush()
		})
	},
}

func init() {
	auditEntriesCmd.Flags().IntVar(&auditFrom, "from", 0, "first index")
	auditEntriesCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries (server caps at 500)")
}
