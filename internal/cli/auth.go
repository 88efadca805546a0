package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loginCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend and cache the token",
		Args:  cobra.NoArgs,
	}
	username := cmd.Flags().String("username", "", "Username")
	password := cmd.Flags().String("password", "", "Password")
	cmd.RunE = run(o, func(cmd *cobra.Command, _ []string, a *app) error {
		resp, err := a.client.Login(cmd.Context(), *username, *password)
		if err != nil {
			return toast("Login failed", err)
		}
		if a.printJSON(resp.User) {
			return nil
		}
		a.printf("Logged in as %s\n", resp.User.Username)
		return nil
	})
	return cmd
}

func logoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached token and user",
		Args:  cobra.NoArgs,
		RunE: run(o, func(_ *cobra.Command, _ []string, a *app) error {
			if err := a.client.Logout(); err != nil {
				return toast("Logout failed", err)
			}
			a.printf("Logged out\n")
			return nil
		}),
	}
}

func bucketsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets [bucket]",
		Short: "List buckets, the objects of one bucket, or preview a file",
		Args:  cobra.MaximumNArgs(1),
	}
	prefix := cmd.Flags().String("prefix", "", "Only list objects under this prefix")
	file := cmd.Flags().String("file", "", "Preview the object with this key")
	cmd.RunE = run(o, func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			buckets, err := a.client.ListBuckets(ctx)
			if err != nil {
				return toast("Failed to list buckets", err)
			}
			if a.printJSON(buckets) {
				return nil
			}
			for _, b := range buckets {
				a.printf("%s\n", b.Name)
			}
			return nil
		}
		bucket := args[0]
		if *file != "" {
			content, err := a.client.GetBucketFile(ctx, bucket, *file)
			if err != nil {
				return toast("Failed to read file", err)
			}
			if a.printJSON(content) {
				return nil
			}
			a.printf("%s\n", content.Content)
			return nil
		}
		objects, err := a.client.ListObjects(ctx, bucket, *prefix)
		if err != nil {
			return toast("Failed to list objects", err)
		}
		if a.printJSON(objects) {
			return nil
		}
		tw := a.table("KEY", "SIZE")
		for _, obj := range objects {
			size := fmt.Sprint(obj.Size)
			if obj.IsFolder {
				size = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\n", obj.Key, size)
		}
		return tw.Flush()
	})
	return cmd
}

func containersCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "containers [container]",
		Short: "List blob containers, the blobs of one container, or preview a blob",
		Args:  cobra.MaximumNArgs(1),
	}
	prefix := cmd.Flags().String("prefix", "", "Only list blobs under this prefix")
	blob := cmd.Flags().String("blob", "", "Preview the blob with this name")
	cmd.RunE = run(o, func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			containers, err := a.client.ListContainers(ctx)
			if err != nil {
				return toast("Failed to list containers", err)
			}
			if a.printJSON(containers) {
				return nil
			}
			for _, c := range containers {
				a.printf("%s\n", c.Name)
			}
			return nil
		}
		if *blob != "" {
			content, err := a.client.GetContainerFile(ctx, args[0], *blob)
			if err != nil {
				return toast("Failed to read blob", err)
			}
			if a.printJSON(content) {
				return nil
			}
			a.printf("%s\n", content.Content)
			return nil
		}
		blobs, err := a.client.ListBlobs(ctx, args[0], *prefix)
		if err != nil {
			return toast("Failed to list blobs", err)
		}
		if a.printJSON(blobs) {
			return nil
		}
		tw := a.table("NAME", "SIZE")
		for _, b := range blobs {
			fmt.Fprintf(tw, "%s\t%d\n", b.Name, b.Size)
		}
		return tw.Flush()
	})
	return cmd
}
