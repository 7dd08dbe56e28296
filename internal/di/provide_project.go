package di

import (
	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
	"github.com/nimbus-pipelines/nimbusctl/internal/project"
)

// ProvideProject locates the project rooted at or above the project dir.
func ProvideProject(dir ProjectDir) (*project.Project, error) {
	return project.Find(string(dir))
}

// ProvideStore creates the deployment store for the project.
func ProvideStore(p *project.Project) (*deployment.Store, error) {
	return deployment.NewStore(p)
}
