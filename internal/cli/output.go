// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-pgpkit.
//
// go-pgpkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// KeyInfo describes one keyring entry for listing.
type KeyInfo struct {
	KeyID   string    `json:"key_id"`
	Bits    int       `json:"bits"`
	Created time.Time `json:"created"`
	UserIDs []string  `json:"user_ids"`
	Secret  bool      `json:"secret"`
	Locked  bool      `json:"locked,omitempty"`
	Revoked bool      `json:"revoked"`
}

// PoolStatus describes the persistent random pool.
type PoolStatus struct {
	Source   string `json:"source"`
	Size     int    `json:"size"`
	Hash     string `json:"hash"`
	Entropy  int    `json:"entropy_bits"`
	Capacity int    `json:"capacity_bits"`
}

// SignatureStatus describes a checked signature.
type SignatureStatus struct {
	KeyID   string    `json:"key_id"`
	UserID  string    `json:"user_id,omitempty"`
	Created time.Time `json:"created"`
	Valid   bool      `json:"valid"`
	Error   string    `json:"error,omitempty"`
}

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintKeyList prints keyring entries
func (p *Printer) PrintKeyList(keys []KeyInfo) error {
	switch p.format {
	case OutputFormatJSON:
		if keys == nil {
			keys = []KeyInfo{}
		}
		return p.printJSON(map[string]interface{}{
			"keys":  keys,
			"count": len(keys),
		})
	case OutputFormatText:
		if len(keys) == 0 {
			fmt.Fprintln(p.writer, "No keys found")
			return nil
		}
		for _, k := range keys {
			kind := "pub"
			if k.Secret {
				kind = "sec"
			}
			var flags []string
			if k.Locked {
				flags = append(flags, "locked")
			}
			if k.Revoked {
				flags = append(flags, "revoked")
			}
			fmt.Fprintf(p.writer, "%s %5d/%s %s", kind, k.Bits, k.KeyID, k.Created.Format("2006-01-02"))
			if len(flags) > 0 {
				fmt.Fprintf(p.writer, " [%s]", strings.Join(flags, ", "))
			}
			fmt.Fprintln(p.writer)
			for _, u := range k.UserIDs {
				fmt.Fprintf(p.writer, "    %s\n", u)
			}
		}
		fmt.Fprintf(p.writer, "%d key(s)\n", len(keys))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPoolStatus prints the random pool state
func (p *Printer) PrintPoolStatus(st PoolStatus) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(st)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Source:   %s\n", st.Source)
		fmt.Fprintf(p.writer, "Pool:     %d bytes (%s)\n", st.Size, st.Hash)
		fmt.Fprintf(p.writer, "Entropy:  %d/%d bits\n", st.Entropy, st.Capacity)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignatureStatus prints the outcome of a signature check
func (p *Printer) PrintSignatureStatus(st SignatureStatus) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(st)
	case OutputFormatText:
		if !st.Valid {
			fmt.Fprintf(p.writer, "BAD signature from key %s: %s\n", st.KeyID, st.Error)
			return nil
		}
		who := st.KeyID
		if st.UserID != "" {
			who = fmt.Sprintf("%q (key %s)", st.UserID, st.KeyID)
		}
		fmt.Fprintf(p.writer, "Good signature from %s made %s\n", who, st.Created.Format(time.RFC3339))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
