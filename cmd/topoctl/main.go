package main

import (
    "log"

    "github.com/spf13/cobra"

    topocli "github.com/clusterkit/go-topology/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "topoctl",
        Short:         "go-topology discovery CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all topology commands from pkg/cli for reuse in services
    topocli.AddAll(root)
    return root
}
