package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Offline inspector for the chat log. Points at a badger directory and
// dumps message or notification records as a table. Run it against a
// stopped instance, or a copy of its data directory.

type chatRecord struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	At        int64  `json:"at"`
	CreatedAt int64  `json:"created_at"`
	IsRead    bool   `json:"is_read"`
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, notif:, room:, participant:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "ID", "Room", "Who", "Read", "Detail"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var record chatRecord
				if err := json.Unmarshal(v, &record); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append(toRow(string(item.Key()), record))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, record chatRecord) []string {
	kind := "MSG"
	who := record.Sender
	detail := record.Content
	nano := record.At

	switch {
	case strings.HasPrefix(key, "notif:"):
		kind = "NOTIF"
		who = record.Recipient
		detail = record.Message
		nano = record.CreatedAt
	case strings.HasPrefix(key, "room:"):
		kind = "ROOM"
		who = ""
		detail = record.Type
	case strings.HasPrefix(key, "participant:"):
		kind = "MEMBER"
		detail = ""
	}

	at := ""
	if nano != 0 {
		at = time.Unix(0, nano).UTC().Format("15:04:05")
	}

	// First 8 characters of the id keep the table readable.
	displayID := record.ID
	if len(displayID) > 8 {
		displayID = displayID[:8]
	}

	read := ""
	if record.IsRead {
		read = "x"
	}

	return []string{key, kind, at, displayID, record.Room, who, read, detail}
}

func openDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR)
	return badger.Open(options)
}
