package server

import "fmt"

const (
	StatusContinue           = 100
	StatusSwitchingProtocols = 101

	StatusOK                          = 200
	StatusCreated                     = 201
	StatusAccepted                    = 202
	StatusNonAuthoritativeInformation = 203
	StatusNoContent                   = 204
	StatusResetContent                = 205
	StatusPartialContent              = 206

	StatusMultipleChoices   = 300
	StatusMovedPermanently  = 301
	StatusFound             = 302
	StatusSeeOther          = 303
	StatusNotModified       = 304
	StatusUseProxy          = 305
	StatusUnused            = 306
	StatusTemporaryRedirect = 307

	StatusBadRequest                   = 400
	StatusUnauthorized                 = 401
	StatusPaymentRequired              = 402
	StatusForbidden                    = 403
	StatusNotFound                     = 404
	StatusMethodNotAllowed             = 405
	StatusNotAcceptable                = 406
	StatusProxyAuthenticationRequired  = 407
	StatusRequestTimeout               = 408
	StatusConflict                     = 409
	StatusGone                         = 410
	StatusLengthRequired               = 411
	StatusPreconditionFailed           = 412
	StatusRequestEntityTooLarge        = 413
	StatusRequestURITooLong            = 414
	StatusUnsupportedMediaType         = 415
	StatusRequestedRangeNotSatisfiable = 416
	StatusExpectationFailed            = 417

	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusBadGateway              = 502
	StatusServiceUnavailable      = 503
	StatusGatewayTimeout          = 504
	StatusHTTPVersionNotSupported = 505
)

type statusText struct {
	reason  string
	message string // default explanation for error pages
}

var statusTexts = map[int]statusText{
	StatusContinue:           {"Continue", "The client should continue with its request."},
	StatusSwitchingProtocols: {"Switching Protocols", "The server is switching protocols as requested."},

	StatusOK:                          {"OK", "The request has succeeded."},
	StatusCreated:                     {"Created", "The request has been fulfilled and a new resource has been created."},
	StatusAccepted:                    {"Accepted", "The request has been accepted for processing."},
	StatusNonAuthoritativeInformation: {"Non-Authoritative Information", "The returned information is from a third-party copy."},
	StatusNoContent:                   {"No Content", "The request has been fulfilled and there is no content to send."},
	StatusResetContent:                {"Reset Content", "The request has been fulfilled; the client should reset the document view."},
	StatusPartialContent:              {"Partial Content", "The server has fulfilled a partial request for the resource."},

	StatusMultipleChoices:   {"Multiple Choices", "The requested resource has several representations."},
	StatusMovedPermanently:  {"Moved Permanently", "The requested resource has been assigned a new permanent URI."},
	StatusFound:             {"Found", "The requested resource resides temporarily under a different URI."},
	StatusSeeOther:          {"See Other", "The response to the request can be found under a different URI."},
	StatusNotModified:       {"Not Modified", "The requested resource has not been modified."},
	StatusUseProxy:          {"Use Proxy", "The requested resource must be accessed through a proxy."},
	StatusUnused:            {"Switch Proxy", "This status code is no longer used."},
	StatusTemporaryRedirect: {"Temporary Redirect", "The requested resource resides temporarily under a different URI."},

	StatusBadRequest:                   {"Bad Request", "The request could not be understood by the server due to malformed syntax."},
	StatusUnauthorized:                 {"Unauthorized", "The request requires user authentication."},
	StatusPaymentRequired:              {"Payment Required", "This code is reserved for future use."},
	StatusForbidden:                    {"Forbidden", "The server understood the request, but is refusing to fulfill it."},
	StatusNotFound:                     {"Not Found", "The requested resource could not be found on this server."},
	StatusMethodNotAllowed:             {"Method Not Allowed", "The method is not allowed for the requested resource."},
	StatusNotAcceptable:                {"Not Acceptable", "The resource cannot be sent in any content-coding the request accepts."},
	StatusProxyAuthenticationRequired:  {"Proxy Authentication Required", "The client must first authenticate itself with the proxy."},
	StatusRequestTimeout:               {"Request Timeout", "The request was not completed within the time the server was prepared to wait."},
	StatusConflict:                     {"Conflict", "The request conflicts with the current state of the resource."},
	StatusGone:                         {"Gone", "The requested resource is no longer available and no forwarding address is known."},
	StatusLengthRequired:               {"Length Required", "The server refuses to accept the request without a defined Content-Length."},
	StatusPreconditionFailed:           {"Precondition Failed", "A precondition given in the request header fields evaluated to false."},
	StatusRequestEntityTooLarge:        {"Request Entity Too Large", "The request entity is larger than the server is willing to process."},
	StatusRequestURITooLong:            {"Request-URI Too Long", "The Request-URI is longer than the server is willing to interpret."},
	StatusUnsupportedMediaType:         {"Unsupported Media Type", "The request entity is in a format not supported by the requested resource."},
	StatusRequestedRangeNotSatisfiable: {"Requested Range Not Satisfiable", "None of the requested ranges overlap the resource."},
	StatusExpectationFailed:            {"Expectation Failed", "The expectation given in the Expect request header could not be met."},

	StatusInternalServerError:     {"Internal Server Error", "The server encountered an unexpected condition which prevented it from fulfilling the request."},
	StatusNotImplemented:          {"Not Implemented", "The server does not support the functionality required to fulfill the request."},
	StatusBadGateway:              {"Bad Gateway", "The server received an invalid response from an upstream server."},
	StatusServiceUnavailable:      {"Service Unavailable", "The server is currently unable to handle the request."},
	StatusGatewayTimeout:          {"Gateway Timeout", "The server did not receive a timely response from an upstream server."},
	StatusHTTPVersionNotSupported: {"HTTP Version Not Supported", "The server does not support the HTTP protocol version used in the request."},
}

// StatusReason returns the default reason phrase for code.
func StatusReason(code int) string {
	if text, ok := statusTexts[code]; ok {
		return text.reason
	}
	return fmt.Sprintf("Status %d", code)
}

// StatusMessage returns the default explanation shown on error pages.
func StatusMessage(code int) string {
	if text, ok := statusTexts[code]; ok {
		return text.message
	}
	return ""
}
