package main

import (
	"collab-realtime/repositories"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// Lists the offline fallback notifications a node wrote to its Badger store.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	user := flag.Int64("user", 0, "Only show this recipient (0 for everyone)")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewNotificationRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), nil)
	all, err := repository.AllNotifications()
	if err != nil {
		log.Fatal(err)
	}
	if *user != 0 {
		all = lo.Filter(all, func(n repositories.DiskNotification, _ int) bool {
			return n.UserID == *user
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Recipient", "Type", "At", "Entity", "Read", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, n := range all {
		table.Append([]string{
			strconv.FormatInt(n.UserID, 10),
			n.Type,
			n.At.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s:%d", n.EntityType, n.EntityID),
			strconv.FormatBool(n.IsRead),
			n.Content,
		})
	}
	table.Render()
	fmt.Printf("%d notification(s)\n", len(all))
}
