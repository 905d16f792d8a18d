package network

import (
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
)

// Peer types announced in the auth handshake
const (
	PEER_NODE    = "node"
	PEER_WRAPPER = "wrapper"
	PEER_BRIDGE  = "bridge"
)

// AuthInfo is the identity a peer announces in its first packet
type AuthInfo struct {
	Type          string
	Name          string
	UniqueId      string
	Token         string
	Subscriptions []string
	Properties    document.Document
}

// ToDocument encodes the auth info as auth packet header
func (ai AuthInfo) ToDocument() document.Document {
	props := ai.Properties
	if props == nil {
		props = document.New()
	}
	return document.New().
		Append("type", ai.Type).
		Append("name", ai.Name).
		Append("uniqueId", ai.UniqueId).
		Append("token", ai.Token).
		Append("subscriptions", append([]string{}, ai.Subscriptions...)).
		Append("properties", map[string]interface{}(props))
}

// AuthInfoFromDocument decodes an auth packet header
func AuthInfoFromDocument(doc document.Document) AuthInfo {
	return AuthInfo{
		Type:          doc.GetString("type"),
		Name:          doc.GetString("name"),
		UniqueId:      doc.GetString("uniqueId"),
		Token:         doc.GetString("token"),
		Subscriptions: doc.GetStrings("subscriptions"),
		Properties:    doc.GetDocument("properties"),
	}
}

type authResult struct {
	Accepted bool
	Reason   string
	// ServerId is the unique id of the accepting node
	ServerId string
}

func (ar authResult) ToDocument() document.Document {
	return document.New().
		Append("accepted", ar.Accepted).
		Append("reason", ar.Reason).
		Append("serverId", ar.ServerId)
}

func authResultFromDocument(doc document.Document) authResult {
	return authResult{
		Accepted: doc.GetBool("accepted"),
		Reason:   doc.GetString("reason"),
		ServerId: doc.GetString("serverId"),
	}
}
