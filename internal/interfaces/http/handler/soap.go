package handler

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsync "github.com/qbridge/backend/internal/application/sync"
	"github.com/qbridge/backend/internal/infrastructure/logger"
)

// serviceNamespace is the XML namespace the desktop connector expects on
// every operation response element.
const serviceNamespace = "http://developer.intuit.com/"

// SoapHandler exposes the session engine as the SOAP endpoint the desktop
// connector polls. It only unwraps envelopes and translates between protocol
// values; every decision lives in the session service.
type SoapHandler struct {
	BaseHandler
	sessions *appsync.SessionService
}

// NewSoapHandler creates a new SoapHandler
func NewSoapHandler(sessions *appsync.SessionService) *SoapHandler {
	return &SoapHandler{sessions: sessions}
}

// ---------------------------------------------------------------------------
// Request envelope
// ---------------------------------------------------------------------------

// requestEnvelope matches any SOAP 1.1/1.2 envelope; exactly one operation
// element is present per request.
type requestEnvelope struct {
	XMLName xml.Name    `xml:"Envelope"`
	Body    requestBody `xml:"Body"`
}

type requestBody struct {
	Authenticate       *authenticateRequest       `xml:"authenticate"`
	SendRequestXML     *sendRequestXMLRequest     `xml:"sendRequestXML"`
	ReceiveResponseXML *receiveResponseXMLRequest `xml:"receiveResponseXML"`
	GetLastError       *ticketRequest             `xml:"getLastError"`
	CloseConnection    *ticketRequest             `xml:"closeConnection"`
	ConnectionError    *connectionErrorRequest    `xml:"connectionError"`
	ServerVersion      *emptyRequest              `xml:"serverVersion"`
	ClientVersion      *clientVersionRequest      `xml:"clientVersion"`
}

type authenticateRequest struct {
	UserName string `xml:"strUserName"`
	Password string `xml:"strPassword"`
}

type sendRequestXMLRequest struct {
	Ticket          string `xml:"ticket"`
	HCPResponse     string `xml:"strHCPResponse"`
	CompanyFileName string `xml:"strCompanyFileName"`
	Country         string `xml:"qbXMLCountry"`
	MajorVersion    string `xml:"qbXMLMajorVers"`
	MinorVersion    string `xml:"qbXMLMinorVers"`
}

type receiveResponseXMLRequest struct {
	Ticket   string `xml:"ticket"`
	Response string `xml:"response"`
	HResult  string `xml:"hresult"`
	Message  string `xml:"message"`
}

type ticketRequest struct {
	Ticket string `xml:"ticket"`
}

type connectionErrorRequest struct {
	Ticket  string `xml:"ticket"`
	HResult string `xml:"hresult"`
	Message string `xml:"message"`
}

type clientVersionRequest struct {
	Version string `xml:"strVersion"`
}

type emptyRequest struct{}

// ---------------------------------------------------------------------------
// Response envelope
// ---------------------------------------------------------------------------

type authenticateResponse struct {
	XMLName xml.Name    `xml:"authenticateResponse"`
	Xmlns   string      `xml:"xmlns,attr"`
	Result  stringArray `xml:"authenticateResult"`
}

// stringArray renders the two-element array the authenticate result carries:
// the ticket and the result token.
type stringArray struct {
	Strings []string `xml:"string"`
}

type sendRequestXMLResponse struct {
	XMLName xml.Name `xml:"sendRequestXMLResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"sendRequestXMLResult"`
}

type receiveResponseXMLResponse struct {
	XMLName xml.Name `xml:"receiveResponseXMLResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  int      `xml:"receiveResponseXMLResult"`
}

type getLastErrorResponse struct {
	XMLName xml.Name `xml:"getLastErrorResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"getLastErrorResult"`
}

type closeConnectionResponse struct {
	XMLName xml.Name `xml:"closeConnectionResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"closeConnectionResult"`
}

type connectionErrorResponse struct {
	XMLName xml.Name `xml:"connectionErrorResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"connectionErrorResult"`
}

type serverVersionResponse struct {
	XMLName xml.Name `xml:"serverVersionResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"serverVersionResult"`
}

type clientVersionResponse struct {
	XMLName xml.Name `xml:"clientVersionResponse"`
	Xmlns   string   `xml:"xmlns,attr"`
	Result  string   `xml:"clientVersionResult"`
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handle dispatches a SOAP request to the matching protocol operation.
// Protocol-level failures are reported inside the result values, never as
// HTTP errors: the desktop connector treats any non-200 as a dead server.
func (h *SoapHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable request body")
		return
	}

	var env requestEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		logger.L(c.Request.Context()).Warn("malformed envelope", zap.Error(err))
		c.String(http.StatusBadRequest, "malformed envelope")
		return
	}

	ctx := c.Request.Context()
	log := logger.L(ctx)

	switch op := env.Body; {
	case op.Authenticate != nil:
		ticket, result := h.sessions.Authenticate(ctx, op.Authenticate.UserName, op.Authenticate.Password)
		h.respond(c, authenticateResponse{
			Xmlns:  serviceNamespace,
			Result: stringArray{Strings: []string{ticket, result}},
		})

	case op.SendRequestXML != nil:
		req := op.SendRequestXML
		wireVersion := req.MajorVersion
		if req.MinorVersion != "" {
			wireVersion += "." + req.MinorVersion
		}
		payload, err := h.sessions.SendRequest(ctx, req.Ticket, req.CompanyFileName, wireVersion)
		if err != nil {
			// an empty result tells the client the run is over
			log.Warn("send request refused", zap.Error(err))
			payload = ""
		}
		h.respond(c, sendRequestXMLResponse{Xmlns: serviceNamespace, Result: payload})

	case op.ReceiveResponseXML != nil:
		req := op.ReceiveResponseXML
		progress, err := h.sessions.ReceiveResponse(ctx, req.Ticket, req.Response, req.HResult, req.Message)
		if err != nil {
			// negative progress asks the client to call getLastError
			log.Warn("response rejected", zap.Error(err))
			progress = -1
		}
		h.respond(c, receiveResponseXMLResponse{Xmlns: serviceNamespace, Result: progress})

	case op.GetLastError != nil:
		message, err := h.sessions.LastError(ctx, op.GetLastError.Ticket)
		if err != nil {
			message = "No session found for ticket"
		}
		h.respond(c, getLastErrorResponse{Xmlns: serviceNamespace, Result: message})

	case op.CloseConnection != nil:
		result, err := h.sessions.CloseConnection(ctx, op.CloseConnection.Ticket)
		if err != nil {
			result = "OK"
		}
		h.respond(c, closeConnectionResponse{Xmlns: serviceNamespace, Result: result})

	case op.ConnectionError != nil:
		req := op.ConnectionError
		result, err := h.sessions.ConnectionError(ctx, req.Ticket, req.HResult, req.Message)
		if err != nil {
			result = "done"
		}
		h.respond(c, connectionErrorResponse{Xmlns: serviceNamespace, Result: result})

	case op.ServerVersion != nil:
		h.respond(c, serverVersionResponse{Xmlns: serviceNamespace, Result: h.sessions.ServerVersion(ctx)})

	case op.ClientVersion != nil:
		h.respond(c, clientVersionResponse{Xmlns: serviceNamespace, Result: h.sessions.ClientVersion(ctx, op.ClientVersion.Version)})

	default:
		c.String(http.StatusBadRequest, "unknown operation")
	}
}

// respond wraps an operation result in a SOAP envelope
func (h *SoapHandler) respond(c *gin.Context, payload any) {
	inner, err := xml.Marshal(payload)
	if err != nil {
		c.String(http.StatusInternalServerError, "encoding failure")
		return
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
	buf.Write(inner)
	buf.WriteString(`</soap:Body></soap:Envelope>`)

	c.Data(http.StatusOK, "text/xml; charset=utf-8", buf.Bytes())
}
