package kserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var isvcGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// teardownTimeout bounds the cleanup after Serve, which runs even when the
// caller's context is already cancelled.
const teardownTimeout = 2 * time.Minute

// Deployer manages subject model deployments.
type Deployer interface {
	Deploy(ctx context.Context, m SubjectModel) (*Deployment, error)
	Teardown(ctx context.Context, name string) error
	List(ctx context.Context, group string) ([]Deployment, error)
}

// Manager deploys subject models as KServe InferenceServices.
type Manager struct {
	client    dynamic.Interface
	namespace string
}

var _ Deployer = (*Manager)(nil)

// NewManager creates a Manager from a kubeconfig path (default loading
// rules when empty) or from the in-cluster config.
func NewManager(namespace, kubeconfig string, inCluster bool) (*Manager, error) {
	var (
		config *rest.Config
		err    error
	)
	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = kubeconfig
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewManagerWithClient(client, namespace), nil
}

// NewManagerWithClient creates a Manager around an existing dynamic client.
func NewManagerWithClient(client dynamic.Interface, namespace string) *Manager {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Manager{client: client, namespace: namespace}
}

func (m *Manager) resource() dynamic.ResourceInterface {
	return m.client.Resource(isvcGVR).Namespace(m.namespace)
}

// CheckCRDAvailable returns an error when InferenceServices cannot be
// listed in the namespace.
func (m *Manager) CheckCRDAvailable(ctx context.Context) error {
	if _, err := m.resource().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("KServe InferenceService CRD is not available in the cluster: %w", err)
	}
	return nil
}

// Deploy creates the InferenceService and blocks until it reports ready.
func (m *Manager) Deploy(ctx context.Context, model SubjectModel) (*Deployment, error) {
	if model.ModelURI == "" {
		return nil, errors.New("subject model needs a model URI")
	}
	svc := buildService(model, m.namespace)
	obj, err := svc.toObject()
	if err != nil {
		return nil, err
	}

	slog.Info("deploying subject model",
		"name", svc.Name,
		"group", model.Group,
		"model_uri", model.ModelURI,
		"gpu_count", model.GPUCount,
	)

	created, err := m.resource().Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create InferenceService %s: %w", svc.Name, err)
	}

	ready, err := m.waitForReady(ctx, svc.Name, model.ReadyTimeout)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if terr := m.Teardown(cleanupCtx, svc.Name); terr != nil {
			slog.Error("failed to remove InferenceService that never became ready", "name", svc.Name, "error", terr)
		}
		return nil, fmt.Errorf("InferenceService %s not ready: %w", svc.Name, err)
	}

	d := ready.deployment()
	d.CreatedAt = created.GetCreationTimestamp().UTC().Format(time.RFC3339)
	return &d, nil
}

// Teardown deletes the InferenceService. A missing service is not an error.
func (m *Manager) Teardown(ctx context.Context, name string) error {
	name = resourceName(name)
	slog.Info("tearing down subject model", "name", name)

	grace := int64(30)
	propagation := metav1.DeletePropagationForeground
	err := m.resource().Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
		PropagationPolicy:  &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete InferenceService %s: %w", name, err)
	}
	return nil
}

// List returns the subject models managed by this tool, restricted to one
// selection group when group is set.
func (m *Manager) List(ctx context.Context, group string) ([]Deployment, error) {
	selector := labelManagedBy + "=" + managedBy
	if group != "" {
		selector += "," + labelGroup + "=" + resourceName(group)
	}

	list, err := m.resource().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list InferenceServices: %w", err)
	}

	out := make([]Deployment, 0, len(list.Items))
	for i := range list.Items {
		svc, err := parseService(&list.Items[i])
		if err != nil {
			slog.Warn("skipping unreadable InferenceService", "error", err)
			continue
		}
		out = append(out, svc.deployment())
	}
	return out, nil
}

// Get returns the deployment named name.
func (m *Manager) Get(ctx context.Context, name string) (*Deployment, error) {
	name = resourceName(name)
	obj, err := m.resource().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get InferenceService %s: %w", name, err)
	}
	svc, err := parseService(obj)
	if err != nil {
		return nil, err
	}
	d := svc.deployment()
	return &d, nil
}

func (m *Manager) waitForReady(ctx context.Context, name string, timeout time.Duration) (*inferenceService, error) {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watcher, err := m.resource().Watch(ctx, metav1.ListOptions{FieldSelector: "metadata.name=" + name})
	if err != nil {
		return nil, fmt.Errorf("failed to watch InferenceService: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for InferenceService %s to become ready", name)
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return nil, fmt.Errorf("watch channel closed for InferenceService %s", name)
			}
			if event.Type != watch.Added && event.Type != watch.Modified {
				continue
			}
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			svc, err := parseService(obj)
			if err != nil {
				slog.Warn("failed to parse watch event", "error", err)
				continue
			}
			ready, cond := svc.Status.ready()
			if ready {
				slog.Info("subject model ready", "name", name)
				return svc, nil
			}
			if cond != nil {
				slog.Debug("subject model not ready yet", "name", name, "reason", cond.Reason, "message", cond.Message)
			}
		}
	}
}

// Serve deploys the subject model, calls fn with its chat completions
// endpoint and tears the model down afterwards, whatever fn returns.
func Serve(ctx context.Context, d Deployer, model SubjectModel, fn func(ctx context.Context, endpoint string) error) (err error) {
	dep, err := d.Deploy(ctx, model)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if terr := d.Teardown(cleanupCtx, dep.Name); terr != nil {
			slog.Error("failed to tear down subject model", "name", dep.Name, "error", terr)
			err = errors.Join(err, terr)
		}
	}()

	return fn(ctx, dep.ChatEndpoint())
}
