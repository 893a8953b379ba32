package model

// EngineStats aggregates session cache statistics and durable record
// counts per collection.
type EngineStats struct {
	ActiveConversations int `json:"active_conversations"`
	SessionTTLHours     int `json:"session_ttl_hours"`
	ConversationRecords int `json:"conversation_records"`
	DocumentRecords     int `json:"document_records"`
}
