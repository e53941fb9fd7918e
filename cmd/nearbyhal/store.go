package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/nearbyhal/pkg/hal"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Read and write the persistence store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE:  runStoreGet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store value under key, replacing any previous value",
		Args:  cobra.ExactArgs(2),
		RunE:  runStorePut,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove key; removing a missing key succeeds",
		Args:  cobra.ExactArgs(1),
		RunE:  runStoreDelete,
	})
	return cmd
}

// withStore binds the platform and hands fn an initialized store.
func withStore(cmd *cobra.Command, fn func(hal.Persistence) error) error {
	p, _, err := loadPlatform(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	store := p.Persistence()
	if err := hal.OpError("open store", store.Init()); err != nil {
		return err
	}
	return fn(store)
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(store hal.Persistence) error {
		data, st := store.Read(args[0])
		if st == hal.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, args[0])
		}
		if err := hal.OpError("read "+args[0], st); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	})
}

func runStorePut(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(store hal.Persistence) error {
		return hal.OpError("write "+args[0], store.Write(args[0], []byte(args[1])))
	})
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(store hal.Persistence) error {
		return hal.OpError("delete "+args[0], store.Delete(args[0]))
	})
}
