package kserve

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

const (
	apiVersion = "serving.kserve.io/v1beta1"
	kind       = "InferenceService"

	labelManagedBy = "app.kubernetes.io/managed-by"
	labelName      = "app.kubernetes.io/name"
	labelGroup     = "wrapper-eval.giantswarm.io/group"
	managedBy      = "wrapper-eval"

	gpuResource = corev1.ResourceName("nvidia.com/gpu")
)

// inferenceService mirrors the subset of the serving.kserve.io/v1beta1
// schema used here.
type inferenceService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   serviceSpec   `json:"spec,omitempty"`
	Status serviceStatus `json:"status,omitempty"`
}

type serviceSpec struct {
	Predictor struct {
		Model *modelSpec `json:"model,omitempty"`
	} `json:"predictor"`
}

type modelSpec struct {
	ModelFormat struct {
		Name string `json:"name"`
	} `json:"modelFormat"`
	Runtime    *string                     `json:"runtime,omitempty"`
	StorageURI *string                     `json:"storageUri,omitempty"`
	Resources  corev1.ResourceRequirements `json:"resources,omitempty"`
	Args       []string                    `json:"args,omitempty"`
}

type serviceStatus struct {
	Conditions []condition `json:"conditions,omitempty"`
	URL        string      `json:"url,omitempty"`
}

type condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s serviceStatus) ready() (bool, *condition) {
	for i, c := range s.Conditions {
		if c.Type == "Ready" {
			return c.Status == "True", &s.Conditions[i]
		}
	}
	return false, nil
}

// buildService renders the InferenceService for a subject model.
func buildService(m SubjectModel, namespace string) *inferenceService {
	svc := &inferenceService{
		TypeMeta: metav1.TypeMeta{APIVersion: apiVersion, Kind: kind},
		ObjectMeta: metav1.ObjectMeta{
			Name:      resourceName(m.Name),
			Namespace: namespace,
			Labels: map[string]string{
				labelManagedBy: managedBy,
				labelName:      resourceName(m.Name),
			},
		},
	}
	if m.Group != "" {
		svc.Labels[labelGroup] = resourceName(m.Group)
	}

	uri := m.ModelURI
	spec := &modelSpec{StorageURI: &uri, Args: m.RuntimeArgs}
	spec.ModelFormat.Name = "vLLM"
	if m.Runtime != "" {
		rt := m.Runtime
		spec.Runtime = &rt
	}
	if m.GPUCount > 0 {
		q := resource.MustParse(strconv.Itoa(m.GPUCount))
		spec.Resources = corev1.ResourceRequirements{
			Requests: corev1.ResourceList{gpuResource: q},
			Limits:   corev1.ResourceList{gpuResource: q},
		}
	}
	svc.Spec.Predictor.Model = spec
	return svc
}

func (s *inferenceService) toObject() (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(s)
	if err != nil {
		return nil, fmt.Errorf("failed to convert InferenceService: %w", err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

func parseService(obj *unstructured.Unstructured) (*inferenceService, error) {
	svc := &inferenceService{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, svc); err != nil {
		return nil, fmt.Errorf("failed to parse InferenceService %s: %w", obj.GetName(), err)
	}
	return svc, nil
}

// resourceName maps an arbitrary identifier onto a DNS-1123 label:
// lower case, separators turned into dashes, a letter first, at most 63
// characters and no trailing dash.
func resourceName(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case strings.ContainsRune("_./@:", r):
			b.WriteByte('-')
		}
	}
	name := b.String()
	if name != "" && (name[0] < 'a' || name[0] > 'z') {
		name = "m-" + name
	}
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.TrimRight(name, "-")
}

// ClusterBaseURL is the in-cluster OpenAI-compatible base URL of a
// deployment that has not reported its own URL.
func ClusterBaseURL(name, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local/v1", resourceName(name), namespace)
}

func (s *inferenceService) deployment() Deployment {
	d := Deployment{
		Name:      s.Name,
		Group:     s.Labels[labelGroup],
		CreatedAt: s.CreationTimestamp.UTC().Format(time.RFC3339),
	}
	ready, cond := s.Status.ready()
	if !ready {
		d.Message = "pending"
		if cond != nil && cond.Message != "" {
			d.Message = "pending: " + cond.Message
		}
		return d
	}
	d.Ready = true
	d.BaseURL = s.Status.URL
	if d.BaseURL == "" {
		d.BaseURL = ClusterBaseURL(s.Name, s.Namespace)
	}
	return d
}
