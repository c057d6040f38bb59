/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/service"
	"github.com/mautops/project-approval/pkg/chain"
	"github.com/mautops/project-approval/pkg/policy"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/spf13/cobra"
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the approval routing policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective routing policy as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, _, err := loadPolicyTable(cmd)
		if err != nil {
			return err
		}

		data, err := table.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal policy: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var policyResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Preview the approval chain for a scope and budget",
	Example: `  project-approval policy resolve --scope external --budget 10000000 --allocation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, cfg, err := loadPolicyTable(cmd)
		if err != nil {
			return err
		}

		scope, _ := cmd.Flags().GetString("scope")
		budget, _ := cmd.Flags().GetFloat64("budget")
		allocation, _ := cmd.Flags().GetBool("allocation")

		scopes := make([]types.Scope, 0, len(cfg.Workflow.ImmediateExecutionScopes))
		for _, s := range cfg.Workflow.ImmediateExecutionScopes {
			scopes = append(scopes, types.Scope(s))
		}
		builder := chain.NewBuilder(table, chain.Options{
			TopRoleLevel:             cfg.Workflow.TopRoleLevel,
			ImmediateExecutionScopes: scopes,
		})

		res, err := service.NewPolicyService(builder).Resolve(types.Scope(scope), budget, allocation)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "band:   %s\n", res.Band.Name)
		fmt.Fprintf(out, "status: %s\n", res.Status)
		if len(res.Labels) == 0 {
			fmt.Fprintln(out, "chain:  (no approval required)")
			return nil
		}
		fmt.Fprintf(out, "chain:  %s\n", strings.Join(res.Labels, " -> "))
		return nil
	},
}

// loadPolicyTable 读取配置指定的策略文件,未配置时使用内置策略
func loadPolicyTable(cmd *cobra.Command) (*policy.Table, *config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		cfg.Workflow.PolicyFile = file
	}
	if cfg.Workflow.PolicyFile == "" {
		return policy.Default(), cfg, nil
	}

	table, err := policy.Load(cfg.Workflow.PolicyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load policy file: %w", err)
	}
	return table, cfg, nil
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyResolveCmd)

	policyCmd.PersistentFlags().String("file", "", "Policy file path (overrides workflow.policy_file)")

	policyResolveCmd.Flags().String("scope", "", "Project scope: personal, departmental, external")
	policyResolveCmd.Flags().Float64("budget", 0, "Project budget")
	policyResolveCmd.Flags().Bool("allocation", false, "Project requires budget allocation")
	_ = policyResolveCmd.MarkFlagRequired("scope")
}
