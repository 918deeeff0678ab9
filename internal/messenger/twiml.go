// ABOUTME: TwiML rendering for synchronous webhook replies
// ABOUTME: Produces the MessagingResponse XML Twilio expects back

package messenger

import "encoding/xml"

type twimlMessage struct {
	Body string `xml:"Body"`
}

type twimlResponse struct {
	XMLName xml.Name       `xml:"Response"`
	Message []twimlMessage `xml:"Message,omitempty"`
}

// TwiML renders a webhook reply body. An empty body renders an empty
// response, which tells the platform not to reply at all.
func TwiML(body string) string {
	resp := twimlResponse{}
	if body != "" {
		resp.Message = []twimlMessage{{Body: body}}
	}
	data, err := xml.Marshal(resp)
	if err != nil {
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(data)
}
