package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/vqa-lens/backend/internal/client"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("VQA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("timeout", 3*time.Minute)

	root := &cobra.Command{
		Use:           "vqactl",
		Short:         "Command line client for the VQA Lens API",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("server", "http://localhost:8080", "API base URL (env VQA_SERVER)")
	root.PersistentFlags().Duration("timeout", 3*time.Minute, "request timeout (env VQA_TIMEOUT)")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	newClient := func() *client.Client {
		return client.New(v.GetString("server"), nil)
	}
	timeout := func() time.Duration { return v.GetDuration("timeout") }

	root.AddCommand(
		initCMD(newClient, timeout),
		askCMD(newClient, timeout),
		ocrCMD(newClient, timeout),
		downloadCMD(newClient, timeout),
	)
	return root
}
