package main

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ipad-status-backend/internal/catalog"
)

func newCheckCmd() *cobra.Command {
	var flagIDs []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Read the catalog once and print the status payload",
		Long:  "单次读取目录状态并以 JSON 输出；全部读取失败时以非零状态退出。",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ids := cfg.Catalog.DeviceIDs
			if len(flagIDs) > 0 {
				ids = flagIDs
			}

			result := newAggregator(cfg).GetStatus(cmd.Context(), ids)
			return printStatus(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringSliceVar(&flagIDs, "id", nil, "设备查询 ID，覆盖配置中的 device_ids")
	return cmd
}

func printStatus(w io.Writer, result catalog.AggregateResult) error {
	for _, o := range result.Failed() {
		log.Warn().Str("device", o.DeviceID).AnErr("cause", o.Err).Msg("no records for device")
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Payload()); err != nil {
		return err
	}

	if result.Level == catalog.LevelDanger {
		return errDataReadFailure
	}
	return nil
}
