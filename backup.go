package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const maxImportBytes = 32 << 20

// backupFilename is the download name for an export taken on day t (UTC).
func backupFilename(t string) string {
	return "health_record_backup_" + t + ".json"
}

// parseImportDocument decodes an export document into key → value. String
// values are taken verbatim; any other JSON value is kept as its JSON text.
// The AppState key, when present, must itself decode, so a bad file can never
// reach the blob store.
func parseImportDocument(raw []byte) (map[string]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &StorageParseError{Source: "import file", Err: err}
	}
	if doc == nil {
		return nil, &StorageParseError{Source: "import file", Err: fmt.Errorf("document must be a JSON object")}
	}

	values := make(map[string]string, len(doc))
	for k, v := range doc {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			values[k] = s
			continue
		}
		values[k] = string(v)
	}

	if st, ok := values[stateKey]; ok {
		_, skipped, err := decodeState([]byte(st))
		if err != nil {
			return nil, &StorageParseError{Source: "import file", Err: err}
		}
		if len(skipped) > 0 {
			return nil, &StorageParseError{Source: "import file", Err: fmt.Errorf("record key %q is not a YYYY-MM-DD date", skipped[0])}
		}
	}
	return values, nil
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// exportBackup downloads every persisted key/value pair as one JSON document.
// GET /api/backup/export.
func (h *Handler) exportBackup(c *gin.Context) {
	data, err := h.blobs.All(c)
	if err != nil {
		logrus.Errorf("[backup] export failed: %v", err)
		apiError(c, http.StatusInternalServerError, "failed to read storage")
		return
	}

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to encode backup")
		return
	}

	filename := backupFilename(dateKeyOf(h.now().UTC()))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/json", body)
}

// importBackup restores an export document. Without ?confirm=true it only
// validates and lists the keys that would be overwritten. With confirmation
// every key is written verbatim and the store reloads from persistence, with
// mutations held off until both are done.
// POST /api/backup/import.
func (h *Handler) importBackup(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		apiError(c, http.StatusBadRequest, "could not read import file")
		return
	}

	values, err := parseImportDocument(raw)
	if err != nil {
		logrus.Warnf("[backup] rejected import: %v", err)
		respondError(c, err)
		return
	}
	keys := sortedKeys(values)

	if c.Query("confirm") != "true" {
		c.JSON(http.StatusOK, gin.H{"confirmed": false, "keys": keys})
		return
	}

	if err := h.store.Import(c, values); err != nil {
		var pErr *PersistError
		if errors.As(err, &pErr) {
			logrus.Errorf("[backup] import write failed for %d key(s): %v", len(multierr.Errors(pErr.Err)), pErr.Err)
			apiError(c, http.StatusInternalServerError, "import partially failed: "+pErr.Err.Error())
			return
		}
		logrus.Errorf("[backup] reload after import failed: %v", err)
		respondError(c, err)
		return
	}

	logrus.Infof("[backup] imported %d key(s)", len(keys))
	c.JSON(http.StatusOK, gin.H{"confirmed": true, "keys": keys})
}
