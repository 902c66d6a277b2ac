package clustertest

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	"converge/pkg/apis/converge/v1alpha1"
)

// GroupVersion of the Widget test resource.
var GroupVersion = schema.GroupVersion{Group: "test.converge.io", Version: "v1"}

// WidgetKind is the kind used in resource IDs for Widgets.
const WidgetKind = "Widget"

// WidgetSpec is the desired state of a Widget.
type WidgetSpec struct {
	Size    int    `json:"size,omitempty"`
	Message string `json:"message,omitempty"`
}

// WidgetStatus embeds the engine status.
type WidgetStatus struct {
	v1alpha1.Status `json:",inline"`

	Phase string `json:"phase,omitempty"`
}

// Widget is a primary resource used by engine tests.
type Widget struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WidgetSpec   `json:"spec,omitempty"`
	Status WidgetStatus `json:"status,omitempty"`
}

// WidgetList is a list of Widgets.
type WidgetList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Widget `json:"items"`
}

// NewWidget returns a Widget in namespace with the given name and size.
func NewWidget(namespace, name string, size int) *Widget {
	return &Widget{
		TypeMeta:   metav1.TypeMeta{APIVersion: GroupVersion.String(), Kind: WidgetKind},
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name, Generation: 1},
		Spec:       WidgetSpec{Size: size},
	}
}

func (w *Widget) GetConvergeStatus() v1alpha1.Status  { return *w.Status.Status.DeepCopy() }
func (w *Widget) SetConvergeStatus(s v1alpha1.Status) { w.Status.Status = s }

func (in *Widget) DeepCopyInto(out *Widget) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	in.Status.Status.DeepCopyInto(&out.Status.Status)
	out.Status.Phase = in.Status.Phase
}

func (in *Widget) DeepCopy() *Widget {
	if in == nil {
		return nil
	}
	out := new(Widget)
	in.DeepCopyInto(out)
	return out
}

func (in *Widget) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

func (in *WidgetList) DeepCopyInto(out *WidgetList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Widget, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

func (in *WidgetList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(WidgetList)
	in.DeepCopyInto(out)
	return out
}

// Scheme returns a scheme with the client-go types and Widget registered.
func Scheme() *runtime.Scheme {
	s := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(s))
	s.AddKnownTypes(GroupVersion, &Widget{}, &WidgetList{})
	metav1.AddToGroupVersion(s, GroupVersion)
	return s
}
