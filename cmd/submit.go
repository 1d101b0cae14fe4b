package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"PlaceFinder-App/internal/domain/model"
)

func newSubmitCmd() *cobra.Command {
	var (
		lat, lng  float64
		visitorID string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "座標を1件送信する（キャッシュになければキューに送る）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.submission.Submit(cmd.Context(), &model.SubmitCoordinateRequest{
				Latitude:  &lat,
				Longitude: &lng,
				VisitorID: visitorID,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "緯度")
	cmd.Flags().Float64Var(&lng, "lng", 0, "経度")
	cmd.Flags().StringVar(&visitorID, "visitor-id", "", "訪問者ID（省略時は自動生成）")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}
