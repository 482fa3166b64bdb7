package qbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbridge/backend/internal/domain/sync"
)

func TestBuildQueryRequest(t *testing.T) {
	t.Run("customer query carries request id and batch bound", func(t *testing.T) {
		payload, err := BuildQueryRequest(QueryRequest{
			Entity:      sync.EntityCustomer,
			RequestID:   7,
			MaxReturned: 50,
			WireVersion: "13.0",
		})
		require.NoError(t, err)
		assert.Contains(t, payload, `<CustomerQueryRq requestID="7">`)
		assert.Contains(t, payload, "<MaxReturned>50</MaxReturned>")
		assert.Contains(t, payload, `<?qbxml version="13.0"?>`)
	})

	t.Run("list query resumes past the name cursor", func(t *testing.T) {
		payload, err := BuildQueryRequest(QueryRequest{
			Entity:      sync.EntityVendor,
			RequestID:   2,
			MaxReturned: 10,
			AfterName:   "Acme & Sons",
		})
		require.NoError(t, err)
		assert.Contains(t, payload, "<FromName>Acme &amp; Sons</FromName>")
	})

	t.Run("transaction query starts an iterator instead of a name filter", func(t *testing.T) {
		payload, err := BuildQueryRequest(QueryRequest{
			Entity:      sync.EntityInvoice,
			RequestID:   3,
			MaxReturned: 10,
			AfterName:   "ignored",
		})
		require.NoError(t, err)
		assert.Contains(t, payload, `<InvoiceQueryRq requestID="3" iterator="Start">`)
		assert.NotContains(t, payload, "NameRangeFilter")
	})

	t.Run("transaction query continues its iterator", func(t *testing.T) {
		payload, err := BuildQueryRequest(QueryRequest{
			Entity:      sync.EntityBill,
			RequestID:   4,
			MaxReturned: 10,
			IteratorID:  "it-99",
		})
		require.NoError(t, err)
		assert.Contains(t, payload, `<BillQueryRq requestID="4" iterator="Continue" iteratorID="it-99">`)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		req := QueryRequest{Entity: sync.EntityItem, RequestID: 1, MaxReturned: 5}
		first, err := BuildQueryRequest(req)
		require.NoError(t, err)
		second, err := BuildQueryRequest(req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("unknown entity is rejected", func(t *testing.T) {
		_, err := BuildQueryRequest(QueryRequest{Entity: "LEDGER", RequestID: 1})
		assert.ErrorIs(t, err, ErrUnknownEntity)
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("flattens nested record fields", func(t *testing.T) {
		payload := `<?xml version="1.0"?>
<QBXML><QBXMLMsgsRs>
<CustomerQueryRs requestID="7" statusCode="0" statusSeverity="Info" statusMessage="Status OK" iteratorRemainingCount="12" iteratorID="it-7">
  <CustomerRet>
    <ListID>80000001-1</ListID>
    <CompanyName>Globex</CompanyName>
    <BillAddress>
      <Addr1>1 Main St</Addr1>
      <City>Springfield</City>
    </BillAddress>
  </CustomerRet>
  <CustomerRet>
    <ListID>80000002-1</ListID>
    <CompanyName>Initech</CompanyName>
  </CustomerRet>
</CustomerQueryRs>
</QBXMLMsgsRs></QBXML>`

		resp, err := ParseResponse(payload)
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.Equal(t, 7, resp.RequestID)
		assert.Equal(t, 12, resp.Remaining)
		assert.Equal(t, "it-7", resp.IteratorID)
		require.Len(t, resp.Records, 2)

		first := resp.Records[0]
		assert.Equal(t, "80000001-1", first.NativeID)
		assert.Equal(t, "Globex", first.Fields["CompanyName"])
		assert.Equal(t, "1 Main St", first.Fields["BillAddress.Addr1"])
		assert.Equal(t, "Springfield", first.Fields["BillAddress.City"])
	})

	t.Run("transaction records are keyed by txn id", func(t *testing.T) {
		payload := `<QBXML><QBXMLMsgsRs>
<InvoiceQueryRs statusCode="0" statusMessage="Status OK">
  <InvoiceRet>
    <TxnID>5C1-433</TxnID>
    <RefNumber>INV-100</RefNumber>
  </InvoiceRet>
</InvoiceQueryRs>
</QBXMLMsgsRs></QBXML>`

		resp, err := ParseResponse(payload)
		require.NoError(t, err)
		require.Len(t, resp.Records, 1)
		assert.Equal(t, "5C1-433", resp.Records[0].NativeID)
		assert.Equal(t, "INV-100", resp.Records[0].Fields["RefNumber"])
	})

	t.Run("empty result set is a normal response", func(t *testing.T) {
		payload := `<QBXML><QBXMLMsgsRs>
<VendorQueryRs statusCode="1" statusMessage="No match"></VendorQueryRs>
</QBXMLMsgsRs></QBXML>`

		resp, err := ParseResponse(payload)
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.Empty(t, resp.Records)
		assert.Equal(t, -1, resp.Remaining)
		assert.Equal(t, -1, resp.RequestID)
	})

	t.Run("record without an identifier is malformed", func(t *testing.T) {
		payload := `<QBXML><QBXMLMsgsRs>
<CustomerQueryRs statusCode="0">
  <CustomerRet><CompanyName>NoID Inc</CompanyName></CustomerRet>
</CustomerQueryRs>
</QBXMLMsgsRs></QBXML>`

		_, err := ParseResponse(payload)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("truncated document is malformed", func(t *testing.T) {
		_, err := ParseResponse(`<QBXML><QBXMLMsgsRs><CustomerQueryRs statusCode="0"><CustomerRet><ListID>x`)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}
