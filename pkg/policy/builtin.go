package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		resourceNamingPolicy(),
		namespaceRequiredPolicy(),
		sequenceOrderPolicy(),
	}
}

// resourceNamingPolicy enforces resource naming conventions.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Enforces resource naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package openrollout.policies.naming

import rego.v1

deny contains violation if {
	input.resource
	resource := input.resource

	not resource.name
	violation := {
		"message": sprintf("Resource of kind %s must have a name", [resource.kind]),
		"severity": "error",
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name

	lower(name) != name
	violation := {
		"message": sprintf("Resource name '%s' must be lowercase", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name

	not regex.match("^[a-z0-9-]+$", name)
	violation := {
		"message": sprintf("Resource name '%s' must contain only lowercase letters, numbers, and hyphens", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.resource
	resource := input.resource
	name := resource.name

	count(name) > 63
	violation := {
		"message": sprintf("Resource name '%s' must not exceed 63 characters", [name]),
		"severity": "error",
	}
}`,
	}
}

// namespaceRequiredPolicy requires a namespace on monitorable kinds.
func namespaceRequiredPolicy() Policy {
	return Policy{
		Name:        "namespace-required",
		Description: "Monitorable resources must declare a namespace so status queries are unambiguous",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"namespaces"},
		Rego: `package openrollout.policies.namespaces

import rego.v1

deny contains violation if {
	input.resource
	resource := input.resource

	resource.monitorable
	not resource.namespace
	violation := {
		"message": sprintf("Monitorable resource '%s' must declare a namespace", [resource.name]),
		"severity": "error",
	}
}`,
	}
}

// sequenceOrderPolicy checks that clusters are declared after their identity
// resources in the stack sequence.
func sequenceOrderPolicy() Policy {
	return Policy{
		Name:        "sequence-order",
		Description: "Clusters must appear after identity resources in the stack sequence",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"ordering"},
		Rego: `package openrollout.policies.ordering

import rego.v1

deny contains violation if {
	input.resource.kind == "ManagedCluster"
	cluster := input.resource

	some other in input.stack
	other.kind == "UserAssignedIdentity"
	other.sequence_position > cluster.sequence_position

	violation := {
		"message": sprintf("Cluster '%s' is sequenced before identity '%s'", [cluster.name, other.name]),
		"severity": "warning",
	}
}`,
	}
}
