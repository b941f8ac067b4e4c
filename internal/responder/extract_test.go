package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

func TestExtractLeadNoMarker(t *testing.T) {
	reply, ex := ExtractLead("Sure, we are open until 6pm. ")
	assert.Equal(t, "Sure, we are open until 6pm.", reply)
	assert.Equal(t, NoLead, ex.Outcome)
	assert.Nil(t, ex.Payload)
}

func TestExtractLeadParsed(t *testing.T) {
	raw := `Great, I have booked that for you! [[LEAD]]{"type":"booking","customer_name":"Anna","customer_phone":"+49123","details":{"date":"2025-06-01"}}[[/LEAD]]`

	reply, ex := ExtractLead(raw)
	assert.Equal(t, "Great, I have booked that for you!", reply)
	require.Equal(t, ParsedLead, ex.Outcome)
	require.NotNil(t, ex.Payload)
	assert.Equal(t, models.LeadTypeBooking, ex.Payload.Type)
	assert.Equal(t, "Anna", ex.Payload.CustomerName)
	assert.Equal(t, "+49123", ex.Payload.CustomerPhone)
	assert.Equal(t, "2025-06-01", ex.Payload.Details["date"])
}

func TestExtractLeadMarkerNeverLeaks(t *testing.T) {
	cases := []string{
		`Reply. [[LEAD]]{"type":"order","customer_name":"X","customer_phone":"1","details":{}}[[/LEAD]]`,
		`Reply. [[LEAD]]{not json[[/LEAD]]`,
		`Reply. [[LEAD]]{"type":"refund","customer_name":"X","customer_phone":"1","details":{}}[[/LEAD]]`,
		`Reply. [[LEAD]]unterminated`,
	}

	for _, raw := range cases {
		reply, _ := ExtractLead(raw)
		assert.NotContains(t, reply, "[[LEAD]]")
		assert.NotContains(t, reply, "[[/LEAD]]")
		assert.Equal(t, "Reply.", reply)
	}
}

func TestExtractLeadMalformedJSON(t *testing.T) {
	reply, ex := ExtractLead(`Done. [[LEAD]]{broken[[/LEAD]]`)
	assert.Equal(t, "Done.", reply)
	assert.Equal(t, MalformedLead, ex.Outcome)
	assert.Equal(t, "{broken", ex.Raw)
	assert.Nil(t, ex.Payload)
}

func TestExtractLeadInvalidType(t *testing.T) {
	_, ex := ExtractLead(`Ok. [[LEAD]]{"type":"complaint","customer_name":"X","customer_phone":"1","details":{}}[[/LEAD]]`)
	assert.Equal(t, MalformedLead, ex.Outcome)
	assert.NotEmpty(t, ex.Raw)
}

func TestExtractLeadUnterminatedMarker(t *testing.T) {
	reply, ex := ExtractLead(`Here you go. [[LEAD]]{"type":"order"`)
	assert.Equal(t, "Here you go.", reply)
	assert.Equal(t, MalformedLead, ex.Outcome)
}

func TestExtractLeadMarkerMidReply(t *testing.T) {
	reply, ex := ExtractLead(`Before. [[LEAD]]{"type":"inquiry","customer_name":"B","customer_phone":"2","details":{}}[[/LEAD]] After.`)
	assert.Equal(t, "Before.  After.", reply)
	assert.Equal(t, ParsedLead, ex.Outcome)
}

func TestExtractLeadIsPure(t *testing.T) {
	raw := `Hello. [[LEAD]]{"type":"order","customer_name":"C","customer_phone":"3","details":{}}[[/LEAD]]`

	reply1, ex1 := ExtractLead(raw)
	reply2, ex2 := ExtractLead(raw)
	assert.Equal(t, reply1, reply2)
	assert.Equal(t, ex1.Outcome, ex2.Outcome)
	assert.Equal(t, *ex1.Payload, *ex2.Payload)
}
