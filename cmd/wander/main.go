package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wanderkit/wander/internal/appstate"
	"github.com/wanderkit/wander/internal/backup"
	"github.com/wanderkit/wander/internal/domain"
	"github.com/wanderkit/wander/internal/geo"
	"github.com/wanderkit/wander/internal/proximity"
	"github.com/wanderkit/wander/internal/session"
	"github.com/wanderkit/wander/internal/store"
	"github.com/wanderkit/wander/internal/syncserver"
)

var dataDir string

func main() {
	home, _ := os.UserHomeDir()
	defaultDir := filepath.Join(home, ".wander")

	rootCmd := &cobra.Command{
		Use:   "wander",
		Short: "Location-aware bucket list with proximity alerts",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDir, "data directory")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(nearCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadState() (*appstate.State, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return appstate.Load(filepath.Join(dataDir, "settings.json"))
}

func openLocal() (*store.Local, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.NewLocal(filepath.Join(dataDir, "items.db"))
}

// activeStore picks the backend the saved session selects: the remote
// store while signed in, the local store otherwise.
func activeStore(state *appstate.State) (store.Interface, string, error) {
	sess, token := state.Session()
	if sess != nil {
		server := state.SyncServerURL()
		if server == "" {
			return nil, "", fmt.Errorf("signed in but no sync server configured; run 'wander logout' or 'wander login'")
		}
		return store.NewRemote(nil, server, token), sess.IdentityID, nil
	}
	local, err := openLocal()
	if err != nil {
		return nil, "", err
	}
	return local, "", nil
}

// resolveItem finds a single item by id prefix.
func resolveItem(st store.Interface, scope, prefix string) (domain.BucketItem, error) {
	items, err := st.List(scope)
	if err != nil {
		return domain.BucketItem{}, err
	}
	var matches []domain.BucketItem
	for _, it := range items {
		if strings.HasPrefix(it.ID, prefix) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return domain.BucketItem{}, fmt.Errorf("item not found: %s", prefix)
	case 1:
		return matches[0], nil
	default:
		return domain.BucketItem{}, fmt.Errorf("ambiguous id prefix: %s", prefix)
	}
}

func addCmd() *cobra.Command {
	var lat, lng float64
	var desc, category, interest string

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a place to the bucket list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			item, err := domain.NewItem(strings.Join(args, " "), domain.GeoLocation{Lat: lat, Lng: lng})
			if err != nil {
				return err
			}
			item.Description = desc
			item.Category = category
			item.Interest = interest

			if err := st.Add(scope, item); err != nil {
				return err
			}
			state.AddBucket(category)
			state.AddInterest(interest)

			fmt.Printf("Added %s: %s (%.5f, %.5f)\n", item.ID[:8], item.Title, lat, lng)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "target latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "target longitude")
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category bucket")
	cmd.Flags().StringVar(&interest, "interest", "", "interest label")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

func listCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bucket-list items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.List(scope)
			if err != nil {
				return err
			}
			domain.SortItems(items)

			if len(items) == 0 {
				fmt.Println("No items yet. Use 'wander add' to create one.")
				return nil
			}
			for _, it := range items {
				if it.Completed && !all {
					continue
				}
				fmt.Printf("%s  %s%s\n", it.ID[:8], it.Title, itemFlags(it))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed items")
	return cmd
}

func itemFlags(it domain.BucketItem) string {
	var flags []string
	if it.Completed {
		flags = append(flags, "done")
	}
	if it.Notified {
		flags = append(flags, "alerted")
	}
	if it.Category != "" {
		flags = append(flags, it.Category)
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, ", ") + "]"
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show item details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			it, err := resolveItem(st, scope, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("ID:       %s\n", it.ID)
			fmt.Printf("Title:    %s\n", it.Title)
			if it.Description != "" {
				fmt.Printf("Notes:    %s\n", it.Description)
			}
			fmt.Printf("Location: %.5f, %.5f\n", it.TargetLocation.Lat, it.TargetLocation.Lng)
			if it.Category != "" {
				fmt.Printf("Category: %s\n", it.Category)
			}
			if it.Interest != "" {
				fmt.Printf("Interest: %s\n", it.Interest)
			}
			fmt.Printf("Created:  %s\n", it.CreatedAt.Format("2006-01-02 15:04:05"))
			if it.Completed && it.CompletedAt != nil {
				fmt.Printf("Visited:  %s\n", it.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if it.Notified {
				fmt.Println("Alerted:  yes")
			}
			return nil
		},
	}
}

func editCmd() *cobra.Command {
	var title, desc, category, interest string
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Edit an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			it, err := resolveItem(st, scope, args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("title") {
				it.Title = title
			}
			if cmd.Flags().Changed("desc") {
				it.Description = desc
			}
			if cmd.Flags().Changed("category") {
				it.Category = category
				state.AddBucket(category)
			}
			if cmd.Flags().Changed("interest") {
				it.Interest = interest
				state.AddInterest(interest)
			}
			if cmd.Flags().Changed("lat") {
				it.TargetLocation.Lat = lat
			}
			if cmd.Flags().Changed("lng") {
				it.TargetLocation.Lng = lng
			}

			if err := st.Update(scope, it); err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", it.ID[:8])
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&desc, "desc", "", "new description")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&interest, "interest", "", "new interest")
	cmd.Flags().Float64Var(&lat, "lat", 0, "new latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "new longitude")
	return cmd
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done [id]",
		Short: "Toggle an item's visited state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			it, err := resolveItem(st, scope, args[0])
			if err != nil {
				return err
			}
			it.ToggleCompleted()
			if err := st.Update(scope, it); err != nil {
				return err
			}
			if it.Completed {
				fmt.Printf("Visited: %s\n", it.Title)
			} else {
				fmt.Printf("Back on the list: %s\n", it.Title)
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			it, err := resolveItem(st, scope, args[0])
			if err != nil {
				return err
			}
			if err := st.Delete(scope, it.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted %s: %s\n", it.ID[:8], it.Title)
			return nil
		},
	}
}

func nearCmd() *cobra.Command {
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "near",
		Short: "Show distances from a position, flagging items in alert range",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			st, scope, err := activeStore(state)
			if err != nil {
				return err
			}
			defer st.Close()

			here := domain.GeoLocation{Lat: lat, Lng: lng}
			if err := here.Validate(); err != nil {
				return err
			}

			items, err := st.List(scope)
			if err != nil {
				return err
			}
			domain.SortItems(items)

			for _, it := range items {
				d := geo.Distance(here, it.TargetLocation)
				marker := "  "
				if d < proximity.Threshold && !it.Completed {
					marker = "* "
				}
				fmt.Printf("%s%s  %-30s %s\n", marker, it.ID[:8], it.Title, geo.FormatDistance(d))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "current latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "current longitude")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the local list and custom labels to a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			local, err := openLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			items, err := local.List("")
			if err != nil {
				return err
			}
			domain.SortItems(items)

			b, err := backup.Export(items, state.CustomBuckets(), state.CustomInterests())
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], b, 0o644); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			fmt.Printf("Exported %d items to %s\n", len(items), args[0])
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the local list with a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			local, err := openLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			doc, err := backup.Import(local, data)
			if err != nil {
				return err
			}
			state.SetCustomLists(doc.CustomBuckets, doc.CustomInterests)

			fmt.Printf("Imported %d items from %s\n", len(doc.Items), args[0])
			return nil
		},
	}
}

func signupCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "signup [email] [password]",
		Short: "Create an account on the sync server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			if server != "" {
				state.SetSyncServerURL(server)
			}
			if state.SyncServerURL() == "" {
				return fmt.Errorf("no sync server configured; pass --server")
			}
			auth := session.NewRemoteAuth(nil, state.SyncServerURL(), nil, "", nil)
			if err := auth.SignUp(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Account created. Use 'wander login' to sign in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "sync server URL")
	return cmd
}

func loginCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "login [email] [password]",
		Short: "Sign in and switch to the multi-device store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			if server != "" {
				state.SetSyncServerURL(server)
			}
			if state.SyncServerURL() == "" {
				return fmt.Errorf("no sync server configured; pass --server")
			}
			auth := session.NewRemoteAuth(nil, state.SyncServerURL(), nil, "", state.SetSession)
			if err := auth.SignIn(args[0], args[1]); err != nil {
				return err
			}
			sess := auth.Current()
			fmt.Printf("Signed in as %s\n", sess.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "sync server URL")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and switch back to the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			sess, token := state.Session()
			if sess == nil {
				fmt.Println("Already in local mode.")
				return nil
			}
			auth := session.NewRemoteAuth(nil, state.SyncServerURL(), sess, token, state.SetSession)
			if err := auth.SignOut(); err != nil {
				return err
			}
			fmt.Println("Signed out. Items now come from the local store.")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the multi-device sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				if err := os.MkdirAll(dataDir, 0o755); err != nil {
					return fmt.Errorf("create data dir: %w", err)
				}
				dbPath = filepath.Join(dataDir, "server.db")
			}
			repo, err := syncserver.NewRepo(dbPath)
			if err != nil {
				return err
			}

			fmt.Printf("Sync server listening on %s (db %s)\n", addr, dbPath)
			return syncserver.New(repo).Run(addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "server database path")
	return cmd
}
