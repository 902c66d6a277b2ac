package cluster

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	toolscache "k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"

	"converge/pkg/logging"
)

// Options configures NewKubernetes.
type Options struct {
	// Scheme resolves Go types to kinds. Defaults to the client-go scheme.
	Scheme *runtime.Scheme

	// Namespace restricts the cache to one namespace. Empty watches all namespaces.
	Namespace string
}

// Kubernetes implements Cluster with a controller-runtime cache and client.
type Kubernetes struct {
	namespace string
	scheme    *runtime.Scheme
	cache     cache.Cache
	client    client.Client
	apiReader client.Reader
	watchErrs *WatchErrors
}

var _ Cluster = (*Kubernetes)(nil)

// NewKubernetes creates a Cluster backed by the API server at restConfig.
func NewKubernetes(restConfig *rest.Config, opts Options) (*Kubernetes, error) {
	scheme := opts.Scheme
	if scheme == nil {
		scheme = runtime.NewScheme()
		utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	}

	watchErrs := NewWatchErrors()
	cacheOpts := cache.Options{
		Scheme:      scheme,
		NewInformer: newInformerFunc(scheme, watchErrs),
	}
	if opts.Namespace != "" {
		cacheOpts.DefaultNamespaces = map[string]cache.Config{
			opts.Namespace: {},
		}
	}

	c, err := cache.New(restConfig, cacheOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	apiReader, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create API reader: %w", err)
	}

	cl, err := client.New(restConfig, client.Options{
		Scheme: scheme,
		Cache: &client.CacheOptions{
			Reader:       c,
			Unstructured: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Kubernetes{
		namespace: opts.Namespace,
		scheme:    scheme,
		cache:     c,
		client:    cl,
		apiReader: apiReader,
		watchErrs: watchErrs,
	}, nil
}

// newInformerFunc builds the cache's informers with a watch error handler
// that logs like client-go's default and records the failure per kind.
func newInformerFunc(scheme *runtime.Scheme, errs *WatchErrors) func(toolscache.ListerWatcher, runtime.Object, time.Duration, toolscache.Indexers) toolscache.SharedIndexInformer {
	return func(lw toolscache.ListerWatcher, obj runtime.Object, resync time.Duration, indexers toolscache.Indexers) toolscache.SharedIndexInformer {
		inf := toolscache.NewSharedIndexInformer(lw, obj, resync, indexers)
		gvk, err := apiutil.GVKForObject(obj, scheme)
		if err != nil {
			logging.Warn("Cluster", "Watch failures of %T are not tracked: %v", obj, err)
			return inf
		}
		if err := inf.SetWatchErrorHandlerWithContext(func(ctx context.Context, r *toolscache.Reflector, watchErr error) {
			toolscache.DefaultWatchErrorHandler(ctx, r, watchErr)
			errs.Record(gvk, watchErr)
		}); err != nil {
			logging.Warn("Cluster", "Watch failures of %s are not tracked: %v", gvk.Kind, err)
		}
		return inf
	}
}

func (k *Kubernetes) Reader() client.Reader    { return k.cache }
func (k *Kubernetes) Writer() client.Client    { return k.client }
func (k *Kubernetes) APIReader() client.Reader { return k.apiReader }
func (k *Kubernetes) Scheme() *runtime.Scheme  { return k.scheme }

// Informer returns the cache's informer for obj's kind.
func (k *Kubernetes) Informer(ctx context.Context, obj client.Object) (Informer, error) {
	gvk, err := KindOf(k, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kind of %T: %w", obj, err)
	}
	inf, err := k.cache.GetInformer(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to get informer for %T: %w", obj, err)
	}
	return &kubernetesInformer{Informer: inf, gvk: gvk, errs: k.watchErrs}, nil
}

type kubernetesInformer struct {
	cache.Informer
	gvk  schema.GroupVersionKind
	errs *WatchErrors
}

func (i *kubernetesInformer) WatchError() error { return i.errs.Err(i.gvk) }

// Start runs the cache. It blocks until ctx is cancelled.
func (k *Kubernetes) Start(ctx context.Context) error {
	logging.Info("Cluster", "Starting cache in %s", k.namespaceDisplay())
	return k.cache.Start(ctx)
}

// WaitForSync blocks until every informer has synced.
func (k *Kubernetes) WaitForSync(ctx context.Context) bool {
	return k.cache.WaitForCacheSync(ctx)
}

func (k *Kubernetes) namespaceDisplay() string {
	if k.namespace == "" {
		return "all namespaces"
	}
	return "namespace " + k.namespace
}

// GetRestConfig loads a REST config from kubeconfig, or from controller-runtime's
// usual discovery (in-cluster config, $KUBECONFIG, ~/.kube/config) when empty.
func GetRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return ctrl.GetConfig()
}
