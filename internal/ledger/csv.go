package ledger

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

var csvHeader = []string{"subject", "serial_hex", "issued_at_unix", "revoked", "revoked_at_unix", "reason", "issuer", "realm"}

func encodeCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to write ledger header", err)
	}
	for _, e := range entries {
		revokedAt := ""
		if e.RevokedAtUnix != 0 {
			revokedAt = strconv.FormatUint(e.RevokedAtUnix, 10)
		}
		row := []string{
			e.Subject,
			e.SerialHex,
			strconv.FormatUint(e.IssuedAtUnix, 10),
			strconv.FormatBool(e.Revoked),
			revokedAt,
			e.Reason,
			e.Issuer,
			e.Realm,
		}
		if err := w.Write(row); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to write ledger row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to flush ledger rows", err)
	}
	return buf.Bytes(), nil
}

// parseCSV loads ledger rows leniently: the header and blank lines are
// skipped, short rows are ignored, and files written before issuer/realm were
// journaled (6 columns) load with those fields empty.
func parseCSV(data []byte) ([]Entry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to parse ledger file", err)
		}
		if first {
			first = false
			continue
		}
		if len(row) < 6 {
			continue
		}

		e := Entry{
			Subject:   row[0],
			SerialHex: row[1],
			Revoked:   parseBool(row[3]),
			Reason:    row[5],
		}
		e.IssuedAtUnix, _ = strconv.ParseUint(strings.TrimSpace(row[2]), 10, 64)
		if v := strings.TrimSpace(row[4]); v != "" {
			e.RevokedAtUnix, _ = strconv.ParseUint(v, 10, 64)
		}
		if len(row) > 6 {
			e.Issuer = row[6]
		}
		if len(row) > 7 {
			e.Realm = row[7]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "true", "TRUE", "1":
		return true
	}
	return false
}
