package bridge

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// NetworkServiceInfo identifies a service a player is connected to
type NetworkServiceInfo struct {
	Environment service.EnvironmentType
	UniqueId    uuid.UUID
	ServerName  string
	Groups      []string
}

// ToDocument encodes the service info
func (si NetworkServiceInfo) ToDocument() document.Document {
	return document.New().
		Append("environment", string(si.Environment)).
		Append("uniqueId", si.UniqueId.String()).
		Append("serverName", si.ServerName).
		Append("groups", append([]string{}, si.Groups...))
}

// NetworkServiceInfoFromDocument decodes a service info, a missing document is the zero value
func NetworkServiceInfoFromDocument(doc document.Document) NetworkServiceInfo {
	si := NetworkServiceInfo{
		Environment: service.EnvironmentType(doc.GetString("environment")),
		ServerName:  doc.GetString("serverName"),
		Groups:      doc.GetStrings("groups"),
	}
	si.UniqueId, _ = uuid.Parse(doc.GetString("uniqueId"))
	return si
}

// OfflinePlayer is the persisted record of a player who joined the network once
type OfflinePlayer struct {
	UniqueId       uuid.UUID
	Name           string
	XBoxId         string
	FirstLoginTime time.Time
	LastLoginTime  time.Time
	LastAddress    string
	Properties     document.Document
}

// ToDocument encodes the player
func (p OfflinePlayer) ToDocument() document.Document {
	props := p.Properties
	if props == nil {
		props = document.New()
	}
	return document.New().
		Append("uniqueId", p.UniqueId.String()).
		Append("name", p.Name).
		Append("xBoxId", p.XBoxId).
		Append("firstLoginTimeMillis", p.FirstLoginTime.UnixMilli()).
		Append("lastLoginTimeMillis", p.LastLoginTime.UnixMilli()).
		Append("lastAddress", p.LastAddress).
		Append("properties", map[string]interface{}(props))
}

// OfflinePlayerFromDocument decodes a player
func OfflinePlayerFromDocument(doc document.Document) (OfflinePlayer, error) {
	if doc == nil {
		return OfflinePlayer{}, errors.New("player document is missing")
	}
	id, err := uuid.Parse(doc.GetString("uniqueId"))
	if err != nil {
		return OfflinePlayer{}, errors.Wrap(err, "player unique id")
	}
	props := doc.GetDocument("properties")
	if props == nil {
		props = document.New()
	}
	return OfflinePlayer{
		UniqueId:       id,
		Name:           doc.GetString("name"),
		XBoxId:         doc.GetString("xBoxId"),
		FirstLoginTime: time.UnixMilli(doc.GetInt64("firstLoginTimeMillis")),
		LastLoginTime:  time.UnixMilli(doc.GetInt64("lastLoginTimeMillis")),
		LastAddress:    doc.GetString("lastAddress"),
		Properties:     props,
	}, nil
}

func (p OfflinePlayer) clone() OfflinePlayer {
	p.Properties = p.Properties.Clone()
	return p
}

// OnlinePlayer is a player currently connected to a proxy of the network
type OnlinePlayer struct {
	OfflinePlayer
	// LoginService is the proxy the player is connected through
	LoginService NetworkServiceInfo
	// ConnectedService is the server the proxy forwards the player to
	ConnectedService NetworkServiceInfo
}

// ToDocument encodes the player
func (p OnlinePlayer) ToDocument() document.Document {
	return p.OfflinePlayer.ToDocument().
		Append("loginService", map[string]interface{}(p.LoginService.ToDocument())).
		Append("connectedService", map[string]interface{}(p.ConnectedService.ToDocument()))
}

// OnlinePlayerFromDocument decodes a player
func OnlinePlayerFromDocument(doc document.Document) (OnlinePlayer, error) {
	offline, err := OfflinePlayerFromDocument(doc)
	if err != nil {
		return OnlinePlayer{}, err
	}
	return OnlinePlayer{
		OfflinePlayer:    offline,
		LoginService:     NetworkServiceInfoFromDocument(doc.GetDocument("loginService")),
		ConnectedService: NetworkServiceInfoFromDocument(doc.GetDocument("connectedService")),
	}, nil
}

func (p OnlinePlayer) clone() OnlinePlayer {
	p.OfflinePlayer = p.OfflinePlayer.clone()
	p.LoginService.Groups = append([]string{}, p.LoginService.Groups...)
	p.ConnectedService.Groups = append([]string{}, p.ConnectedService.Groups...)
	return p
}

// inEnvironment checks if the player is connected through or to a service of the environment
func (p OnlinePlayer) inEnvironment(env service.EnvironmentType) bool {
	return p.LoginService.Environment == env || p.ConnectedService.Environment == env
}

func playersFromDocuments[T any](docs []document.Document, decode func(document.Document) (T, error)) ([]T, error) {
	res := make([]T, 0, len(docs))
	for _, doc := range docs {
		p, err := decode(doc)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}
