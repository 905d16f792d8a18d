// Package service describes what a service consists of: templates, inclusions, deployments, process
// configuration and its group and task membership, plus the snapshots the node publishes about it.
//
// All types are values. Every type has an explicit document codec, ToDocument and
// XxxFromDocument, used for persisting and for query payloads.
package service

import (
	"fmt"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
)

// ServiceTemplate identifies a bundle of files owned by a template storage
type ServiceTemplate struct {
	Prefix  string
	Name    string
	Storage string
}

// NewServiceTemplate creates a template of the storage
func NewServiceTemplate(prefix, name, storage string) ServiceTemplate {
	return ServiceTemplate{Prefix: prefix, Name: name, Storage: storage}
}

// TemplatePath returns prefix/name
func (t ServiceTemplate) TemplatePath() string {
	return t.Prefix + "/" + t.Name
}

func (t ServiceTemplate) String() string {
	return t.Storage + ":" + t.TemplatePath()
}

// ToDocument encodes the template
func (t ServiceTemplate) ToDocument() document.Document {
	return document.New().
		Append("prefix", t.Prefix).
		Append("name", t.Name).
		Append("storage", t.Storage)
}

// ServiceTemplateFromDocument decodes a template
func ServiceTemplateFromDocument(doc document.Document) ServiceTemplate {
	return ServiceTemplate{
		Prefix:  doc.GetString("prefix"),
		Name:    doc.GetString("name"),
		Storage: doc.GetString("storage"),
	}
}

// ServiceRemoteInclusion is a remote file downloaded into the working directory of a service
type ServiceRemoteInclusion struct {
	URL         string
	Destination string
	// Checksum is the optional sha256 hex digest of the file
	Checksum string
}

// Key is the identity of the inclusion inside a configuration
func (i ServiceRemoteInclusion) Key() string {
	return i.Destination + "<" + i.URL
}

func (i ServiceRemoteInclusion) String() string {
	return fmt.Sprintf("%s -> %s", i.URL, i.Destination)
}

// ToDocument encodes the inclusion
func (i ServiceRemoteInclusion) ToDocument() document.Document {
	doc := document.New().
		Append("url", i.URL).
		Append("destination", i.Destination)
	if i.Checksum != "" {
		doc.Append("checksum", i.Checksum)
	}
	return doc
}

// ServiceRemoteInclusionFromDocument decodes an inclusion
func ServiceRemoteInclusionFromDocument(doc document.Document) ServiceRemoteInclusion {
	return ServiceRemoteInclusion{
		URL:         doc.GetString("url"),
		Destination: doc.GetString("destination"),
		Checksum:    doc.GetString("checksum"),
	}
}

// ServiceDeployment uploads the working directory of a stopping service into a template
type ServiceDeployment struct {
	Template      ServiceTemplate
	ExcludedFiles []string
}

// Key is the identity of the deployment inside a configuration
func (d ServiceDeployment) Key() string {
	return d.Template.String()
}

// ToDocument encodes the deployment
func (d ServiceDeployment) ToDocument() document.Document {
	return document.New().
		Append("template", map[string]interface{}(d.Template.ToDocument())).
		Append("excludes", append([]string{}, d.ExcludedFiles...))
}

// ServiceDeploymentFromDocument decodes a deployment
func ServiceDeploymentFromDocument(doc document.Document) ServiceDeployment {
	return ServiceDeployment{
		Template:      ServiceTemplateFromDocument(doc.GetDocument("template")),
		ExcludedFiles: doc.GetStrings("excludes"),
	}
}
