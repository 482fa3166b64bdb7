// Package qbd speaks the desktop accounting product's XML wire format. It
// builds bounded query requests and flattens query responses into plain
// field maps so nothing above this package touches XML.
package qbd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qbridge/backend/internal/domain/shared"
	"github.com/qbridge/backend/internal/domain/sync"
)

// Codec errors
var (
	ErrUnknownEntity    = shared.NewDomainError("QBD_UNKNOWN_ENTITY", "No wire query defined for entity type")
	ErrMalformedPayload = shared.NewDomainError("QBD_MALFORMED_PAYLOAD", "Response payload is not well-formed")
)

// requestTag maps entity types to their query request element
var requestTag = map[sync.EntityType]string{
	sync.EntityItem:         "ItemQueryRq",
	sync.EntityCustomer:     "CustomerQueryRq",
	sync.EntityVendor:       "VendorQueryRq",
	sync.EntityInvoice:      "InvoiceQueryRq",
	sync.EntityBill:         "BillQueryRq",
	sync.EntityCreditMemo:   "CreditMemoQueryRq",
	sync.EntityJournalEntry: "JournalEntryQueryRq",
}

// listEntities are addressed by ListID and support name-range filtering;
// everything else is a transaction addressed by TxnID.
var listEntities = map[sync.EntityType]bool{
	sync.EntityItem:     true,
	sync.EntityCustomer: true,
	sync.EntityVendor:   true,
}

// QueryRequest describes one bounded query against the desktop file
type QueryRequest struct {
	Entity sync.EntityType
	// RequestID is echoed back by the client and ties the response to the
	// outstanding work item.
	RequestID int
	// MaxReturned bounds the batch size
	MaxReturned int
	// AfterName resumes a list query past the given name cursor; empty
	// starts from the beginning.
	AfterName string
	// NameFilter restricts list queries to names starting with the prefix
	NameFilter string
	// IteratorID continues a server-side iterator for transaction queries;
	// empty starts a new one.
	IteratorID string
	// WireVersion is the client-negotiated wire format version, e.g. "13.0"
	WireVersion string
}

// BuildQueryRequest renders a query request document. Output is deterministic
// for a given input so retried work items carry byte-identical payloads.
func BuildQueryRequest(req QueryRequest) (string, error) {
	tag, ok := requestTag[req.Entity]
	if !ok {
		return "", ErrUnknownEntity
	}
	version := req.WireVersion
	if version == "" {
		version = "13.0"
	}

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&b, `<?qbxml version=%q?>`, version)
	b.WriteString(`<QBXML><QBXMLMsgsRq onError="stopOnError">`)
	if listEntities[req.Entity] {
		fmt.Fprintf(&b, `<%s requestID="%d">`, tag, req.RequestID)
	} else if req.IteratorID == "" {
		fmt.Fprintf(&b, `<%s requestID="%d" iterator="Start">`, tag, req.RequestID)
	} else {
		fmt.Fprintf(&b, `<%s requestID="%d" iterator="Continue" iteratorID=%q>`, tag, req.RequestID, req.IteratorID)
	}
	if req.MaxReturned > 0 {
		fmt.Fprintf(&b, "<MaxReturned>%d</MaxReturned>", req.MaxReturned)
	}
	if listEntities[req.Entity] {
		if req.AfterName != "" {
			b.WriteString(`<NameRangeFilter><FromName>`)
			writeEscaped(&b, req.AfterName)
			b.WriteString(`</FromName></NameRangeFilter>`)
		} else if req.NameFilter != "" {
			b.WriteString(`<NameFilter><MatchCriterion>StartsWith</MatchCriterion><Name>`)
			writeEscaped(&b, req.NameFilter)
			b.WriteString(`</Name></NameFilter>`)
		}
	}
	fmt.Fprintf(&b, "</%s>", tag)
	b.WriteString(`</QBXMLMsgsRq></QBXML>`)
	return b.String(), nil
}

func writeEscaped(b *bytes.Buffer, s string) {
	// xml.EscapeText only errors on a failing writer; bytes.Buffer never fails
	_ = xml.EscapeText(b, []byte(s))
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// Record is one returned business record, flattened to dotted field paths
// (e.g. "BillAddress.Addr1"). NativeID is the record's stable identifier in
// the desktop file.
type Record struct {
	NativeID string
	Fields   map[string]string
}

// Response is the parsed result of one query request
type Response struct {
	// RequestID is the request id echoed by the client, -1 when the response
	// does not carry one. It ties the response to the outstanding work item.
	RequestID int
	// StatusCode is the desktop product's result code; 0 means success and 1
	// means an empty result set.
	StatusCode int
	// StatusMessage is the operator-facing result text
	StatusMessage string
	// Remaining is the count of matching records not yet returned; -1 when
	// the response carries no such hint.
	Remaining int
	// IteratorID continues the iterator on the next request, when present
	IteratorID string
	Records    []Record
}

// OK reports whether the response carries a usable result. Code 1 is "no
// match", which is a normal empty batch.
func (r *Response) OK() bool {
	return r.StatusCode == 0 || r.StatusCode == 1
}

// ParseResponse walks a query response document and flattens each returned
// record. It tolerates unknown elements: only *Ret subtrees and the response
// status attributes are interpreted.
func ParseResponse(payload string) (*Response, error) {
	resp := &Response{RequestID: -1, Remaining: -1}
	dec := xml.NewDecoder(strings.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrMalformedPayload
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(start.Name.Local, "QueryRs"):
			readStatus(resp, start)
		case strings.HasSuffix(start.Name.Local, "Ret"):
			record, err := flattenRecord(dec, start)
			if err != nil {
				return nil, err
			}
			resp.Records = append(resp.Records, record)
		}
	}
	return resp, nil
}

func readStatus(resp *Response, start xml.StartElement) {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "requestID":
			if id, err := strconv.Atoi(attr.Value); err == nil {
				resp.RequestID = id
			}
		case "statusCode":
			if code, err := strconv.Atoi(attr.Value); err == nil {
				resp.StatusCode = code
			}
		case "statusMessage":
			resp.StatusMessage = attr.Value
		case "iteratorRemainingCount":
			if n, err := strconv.Atoi(attr.Value); err == nil {
				resp.Remaining = n
			}
		case "iteratorID":
			resp.IteratorID = attr.Value
		}
	}
}

// flattenRecord consumes one *Ret subtree, producing dotted field paths.
// Repeated nested groups overwrite earlier values; line-level detail is out
// of scope for the flattened view.
func flattenRecord(dec *xml.Decoder, start xml.StartElement) (Record, error) {
	record := Record{Fields: make(map[string]string)}
	var path []string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, ErrMalformedPayload
		}
		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(path) == 0 {
				// closing the *Ret element itself
				if t.Name.Local != start.Name.Local {
					return Record{}, ErrMalformedPayload
				}
				if record.NativeID == "" {
					return Record{}, ErrMalformedPayload
				}
				return record, nil
			}
			value := strings.TrimSpace(text.String())
			if value != "" {
				key := strings.Join(path, ".")
				record.Fields[key] = value
				if key == "ListID" || key == "TxnID" {
					record.NativeID = value
				}
			}
			path = path[:len(path)-1]
			text.Reset()
		}
	}
}
