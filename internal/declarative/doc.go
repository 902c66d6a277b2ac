// Package declarative builds controllers from YAML definitions.
//
// A definition names a primary kind and a list of dependents. Each dependent
// is a Go template rendering one manifest; templates see the primary as
// .primary, the definition's values as .values, the primary's .name and
// .namespace, the dependents already reconciled in this pass as
// .dependents.<name>, and, with a file trigger, the primary's trigger file as
// .file. Templates use the sprig function library.
//
//	name: web
//	primary:
//	  apiVersion: example.com/v1
//	  kind: Website
//	dependents:
//	  - name: config
//	    apiVersion: v1
//	    kind: ConfigMap
//	    template: |
//	      metadata:
//	        name: {{ .name }}-config
//	      data:
//	        replicas: "{{ .primary.spec.replicas }}"
//	status:
//	  phase: Serving
//
// Definitions are loaded once at startup with LoadDir and turned into
// controllers with Build. Store installs and removes definition files,
// validating each before it is written.
package declarative
