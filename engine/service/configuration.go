package service

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
)

// ServiceConfigurationBase holds ordered sets of inclusions, templates and deployments
type ServiceConfigurationBase struct {
	Includes    []ServiceRemoteInclusion
	Templates   []ServiceTemplate
	Deployments []ServiceDeployment
}

// AddInclusion appends the inclusion, returning false if it is already present
func (b *ServiceConfigurationBase) AddInclusion(inclusion ServiceRemoteInclusion) bool {
	for _, i := range b.Includes {
		if i.Key() == inclusion.Key() {
			return false
		}
	}
	b.Includes = append(b.Includes, inclusion)
	return true
}

// AddTemplate appends the template, returning false if it is already present
func (b *ServiceConfigurationBase) AddTemplate(template ServiceTemplate) bool {
	for _, t := range b.Templates {
		if t == template {
			return false
		}
	}
	b.Templates = append(b.Templates, template)
	return true
}

// AddDeployment appends the deployment, returning false if one to the same template is present
func (b *ServiceConfigurationBase) AddDeployment(deployment ServiceDeployment) bool {
	for _, d := range b.Deployments {
		if d.Key() == deployment.Key() {
			return false
		}
	}
	b.Deployments = append(b.Deployments, deployment)
	return true
}

// HasTemplate checks if the template is part of the configuration
func (b *ServiceConfigurationBase) HasTemplate(template ServiceTemplate) bool {
	for _, t := range b.Templates {
		if t == template {
			return true
		}
	}
	return false
}

// Merge appends the entries of other which are not present yet
func (b *ServiceConfigurationBase) Merge(other ServiceConfigurationBase) {
	for _, i := range other.Includes {
		b.AddInclusion(i)
	}
	for _, t := range other.Templates {
		b.AddTemplate(t)
	}
	for _, d := range other.Deployments {
		b.AddDeployment(d)
	}
}

// Clone returns a copy not sharing slices with b
func (b ServiceConfigurationBase) Clone() ServiceConfigurationBase {
	cp := ServiceConfigurationBase{}
	cp.Merge(b)
	for i := range cp.Deployments {
		cp.Deployments[i].ExcludedFiles = append([]string{}, cp.Deployments[i].ExcludedFiles...)
	}
	return cp
}

func (b ServiceConfigurationBase) appendTo(doc document.Document) document.Document {
	return doc.
		Append("includes", document.Documents(b.Includes)).
		Append("templates", document.Documents(b.Templates)).
		Append("deployments", document.Documents(b.Deployments))
}

func configurationBaseFromDocument(doc document.Document) ServiceConfigurationBase {
	var b ServiceConfigurationBase
	for _, d := range doc.GetDocuments("includes") {
		b.AddInclusion(ServiceRemoteInclusionFromDocument(d))
	}
	for _, d := range doc.GetDocuments("templates") {
		b.AddTemplate(ServiceTemplateFromDocument(d))
	}
	for _, d := range doc.GetDocuments("deployments") {
		b.AddDeployment(ServiceDeploymentFromDocument(d))
	}
	return b
}

// GroupConfiguration is a named configuration shared by all services of the group
type GroupConfiguration struct {
	ServiceConfigurationBase
	Name string
}

// NewGroupConfiguration creates an empty group configuration
func NewGroupConfiguration(name string) *GroupConfiguration {
	return &GroupConfiguration{Name: name}
}

// ToDocument encodes the group configuration
func (g *GroupConfiguration) ToDocument() document.Document {
	return g.appendTo(document.Of("name", g.Name))
}

// GroupConfigurationFromDocument decodes a group configuration
func GroupConfigurationFromDocument(doc document.Document) *GroupConfiguration {
	return &GroupConfiguration{
		ServiceConfigurationBase: configurationBaseFromDocument(doc),
		Name:                     doc.GetString("name"),
	}
}

// EnvironmentType selects the default startup of a service process
type EnvironmentType string

// Supported environment types
const (
	MINECRAFT_SERVER EnvironmentType = "MINECRAFT_SERVER"
	GLOWSTONE        EnvironmentType = "GLOWSTONE"
	NUKKIT           EnvironmentType = "NUKKIT"
	GO_MINT          EnvironmentType = "GO_MINT"
	BUNGEECORD       EnvironmentType = "BUNGEECORD"
	VELOCITY         EnvironmentType = "VELOCITY"
	WATERDOG         EnvironmentType = "WATERDOG"
	PROXY            EnvironmentType = "PROXY"
)

type environmentInfo struct {
	jar         string
	defaultPort int
	proxy       bool
}

var environments = map[EnvironmentType]environmentInfo{
	MINECRAFT_SERVER: {"spigot.jar", 44955, false},
	GLOWSTONE:        {"glowstone.jar", 44955, false},
	NUKKIT:           {"nukkit.jar", 44955, false},
	GO_MINT:          {"gomint.jar", 44955, false},
	BUNGEECORD:       {"bungee.jar", 25565, true},
	VELOCITY:         {"velocity.jar", 25565, true},
	WATERDOG:         {"waterdog.jar", 19132, true},
	PROXY:            {"proxy.jar", 25565, true},
}

// EnvironmentTypes returns all environment types
func EnvironmentTypes() []EnvironmentType {
	return []EnvironmentType{MINECRAFT_SERVER, GLOWSTONE, NUKKIT, GO_MINT, BUNGEECORD, VELOCITY, WATERDOG, PROXY}
}

// ParseEnvironmentType parses the case insensitive environment name
func ParseEnvironmentType(s string) (EnvironmentType, error) {
	et := EnvironmentType(strings.ToUpper(s))
	if _, ok := environments[et]; !ok {
		return "", errors.Errorf("unknown environment type: %s", s)
	}
	return et, nil
}

// Jar returns the application file started by default
func (et EnvironmentType) Jar() string {
	return environments[et].jar
}

// DefaultPort returns the first port tried for services of the environment
func (et EnvironmentType) DefaultPort() int {
	return environments[et].defaultPort
}

// IsProxy reports whether the environment is a proxy
func (et EnvironmentType) IsProxy() bool {
	return environments[et].proxy
}

// ProcessConfiguration holds the launch parameters of a service process
type ProcessConfiguration struct {
	Environment     EnvironmentType
	MaxHeapMemoryMB int
	JvmOptions      []string
}

// Command returns the default command line of the process
func (pc ProcessConfiguration) Command(javaCommand string) []string {
	if javaCommand == "" {
		javaCommand = "java"
	}
	cmd := []string{javaCommand, fmt.Sprintf("-Xmx%dM", pc.MaxHeapMemoryMB)}
	cmd = append(cmd, pc.JvmOptions...)
	cmd = append(cmd, "-jar", pc.Environment.Jar())
	if !pc.Environment.IsProxy() {
		cmd = append(cmd, "nogui")
	}
	return cmd
}

// ToDocument encodes the process configuration
func (pc ProcessConfiguration) ToDocument() document.Document {
	return document.New().
		Append("environment", string(pc.Environment)).
		Append("maxHeapMemorySize", pc.MaxHeapMemoryMB).
		Append("jvmOptions", append([]string{}, pc.JvmOptions...))
}

// ProcessConfigurationFromDocument decodes a process configuration
func ProcessConfigurationFromDocument(doc document.Document) ProcessConfiguration {
	return ProcessConfiguration{
		Environment:     EnvironmentType(doc.GetString("environment")),
		MaxHeapMemoryMB: doc.GetInt("maxHeapMemorySize"),
		JvmOptions:      doc.GetStrings("jvmOptions"),
	}
}

// ServiceTask is the persisted configuration services are created from
type ServiceTask struct {
	ServiceConfigurationBase
	Name             string
	Runtime          string
	AutoDeleteOnStop bool
	StaticServices   bool
	Groups           []string
	Process          ProcessConfiguration
	StartPort        int
	MinServiceCount  int
}

// ToDocument encodes the task
func (t *ServiceTask) ToDocument() document.Document {
	return t.appendTo(document.New()).
		Append("name", t.Name).
		Append("runtime", t.Runtime).
		Append("autoDeleteOnStop", t.AutoDeleteOnStop).
		Append("staticServices", t.StaticServices).
		Append("groups", append([]string{}, t.Groups...)).
		Append("processConfiguration", map[string]interface{}(t.Process.ToDocument())).
		Append("startPort", t.StartPort).
		Append("minServiceCount", t.MinServiceCount)
}

// ServiceTaskFromDocument decodes a task
func ServiceTaskFromDocument(doc document.Document) *ServiceTask {
	return &ServiceTask{
		ServiceConfigurationBase: configurationBaseFromDocument(doc),
		Name:                     doc.GetString("name"),
		Runtime:                  doc.GetString("runtime"),
		AutoDeleteOnStop:         doc.GetBool("autoDeleteOnStop"),
		StaticServices:           doc.GetBool("staticServices"),
		Groups:                   doc.GetStrings("groups"),
		Process:                  ProcessConfigurationFromDocument(doc.GetDocument("processConfiguration")),
		StartPort:                doc.GetInt("startPort"),
		MinServiceCount:          doc.GetInt("minServiceCount"),
	}
}

// ServiceConfiguration is the merged configuration of one service instance
type ServiceConfiguration struct {
	ServiceConfigurationBase
	ServiceId        ServiceId
	Runtime          string
	AutoDeleteOnStop bool
	StaticService    bool
	Groups           []string
	Process          ProcessConfiguration
	Port             int
}

// Clone returns a copy not sharing slices with c
func (c ServiceConfiguration) Clone() ServiceConfiguration {
	c.ServiceConfigurationBase = c.ServiceConfigurationBase.Clone()
	c.Groups = append([]string{}, c.Groups...)
	c.Process.JvmOptions = append([]string{}, c.Process.JvmOptions...)
	return c
}

// ToDocument encodes the service configuration
func (c ServiceConfiguration) ToDocument() document.Document {
	return c.appendTo(document.New()).
		Append("serviceId", map[string]interface{}(c.ServiceId.ToDocument())).
		Append("runtime", c.Runtime).
		Append("autoDeleteOnStop", c.AutoDeleteOnStop).
		Append("staticService", c.StaticService).
		Append("groups", append([]string{}, c.Groups...)).
		Append("processConfig", map[string]interface{}(c.Process.ToDocument())).
		Append("port", c.Port)
}

// ServiceConfigurationFromDocument decodes a service configuration
func ServiceConfigurationFromDocument(doc document.Document) (ServiceConfiguration, error) {
	id, err := ServiceIdFromDocument(doc.GetDocument("serviceId"))
	if err != nil {
		return ServiceConfiguration{}, err
	}
	return ServiceConfiguration{
		ServiceConfigurationBase: configurationBaseFromDocument(doc),
		ServiceId:                id,
		Runtime:                  doc.GetString("runtime"),
		AutoDeleteOnStop:         doc.GetBool("autoDeleteOnStop"),
		StaticService:            doc.GetBool("staticService"),
		Groups:                   doc.GetStrings("groups"),
		Process:                  ProcessConfigurationFromDocument(doc.GetDocument("processConfig")),
		Port:                     doc.GetInt("port"),
	}, nil
}
