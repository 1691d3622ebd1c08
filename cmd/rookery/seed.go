package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rookeryhq/rookery/pkg/config"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/types"
)

// applyManifest registers the manifest's hosts, node types, chain versions
// and groups through the manager. Safe to re-run: existing records are kept
// as-is so runtime state (host status, allocations) survives a restart.
func applyManifest(mgr *manager.Manager, m *config.Manifest) error {
	fmt.Printf("Applying fleet manifest for org %s...\n", m.OrgID)

	if err := applyHosts(mgr, m); err != nil {
		return err
	}
	if err := applyNodeTypes(mgr, m); err != nil {
		return err
	}
	if err := applyChainVersions(mgr, m); err != nil {
		return err
	}
	return applyGroups(mgr, m)
}

func applyHosts(mgr *manager.Manager, m *config.Manifest) error {
	for _, h := range m.Hosts {
		_, err := mgr.GetHost(h.ID)
		if err == nil {
			fmt.Printf("Host already registered: %s (skipping)\n", h.ID)
			continue
		}
		if !errors.Is(err, types.ErrHostNotFound) {
			return fmt.Errorf("lookup host %s: %w", h.ID, err)
		}

		now := time.Now()
		host := &types.Host{
			ID:     h.ID,
			OrgID:  m.OrgID,
			Name:   h.Name,
			Status: types.HostStatusUnknown,
			Resources: &types.HostResources{
				CPUCores: h.CPUCores,
				RAMMB:    h.RAMMB,
				DiskMB:   h.DiskMB,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := mgr.CreateHost(host); err != nil {
			return fmt.Errorf("create host %s: %w", h.ID, err)
		}
		fmt.Printf("Host registered: %s (%d cores, %d MB RAM, %d MB disk)\n",
			h.ID, h.CPUCores, h.RAMMB, h.DiskMB)
	}
	return nil
}

func applyNodeTypes(mgr *manager.Manager, m *config.Manifest) error {
	for _, nt := range m.NodeTypes {
		props := make([]types.NodeTypeProperty, 0, len(nt.Properties))
		for _, p := range nt.Properties {
			props = append(props, types.NodeTypeProperty{
				Name:     p.Name,
				Label:    p.Label,
				UIType:   types.UIType(p.UIType),
				Default:  p.Default,
				Required: p.Required,
			})
		}

		now := time.Now()
		t := &types.NodeType{
			Key:         nt.Key,
			ChainID:     nt.ChainID,
			Requirement: types.ResourceSpec{CPUCores: nt.CPUCores, RAMMB: nt.RAMMB, DiskMB: nt.DiskMB},
			Properties:  props,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := mgr.PutNodeType(t); err != nil {
			return fmt.Errorf("put node type %s/%s: %w", nt.ChainID, nt.Key, err)
		}
		fmt.Printf("Node type applied: %s/%s\n", nt.ChainID, nt.Key)
	}
	return nil
}

func applyChainVersions(mgr *manager.Manager, m *config.Manifest) error {
	for _, cv := range m.ChainVersions {
		existing, err := mgr.ListChainVersions(cv.ChainID, cv.NodeType)
		if err != nil {
			return fmt.Errorf("list versions for %s/%s: %w", cv.ChainID, cv.NodeType, err)
		}
		published := false
		for _, e := range existing {
			if e.Version == cv.Version {
				published = true
				break
			}
		}
		if published {
			fmt.Printf("Chain version already published: %s/%s %s (skipping)\n",
				cv.ChainID, cv.NodeType, cv.Version)
			continue
		}

		if err := mgr.AddChainVersion(&types.ChainVersion{
			ChainID:   cv.ChainID,
			NodeType:  cv.NodeType,
			Version:   cv.Version,
			CreatedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("publish version %s/%s %s: %w", cv.ChainID, cv.NodeType, cv.Version, err)
		}
		fmt.Printf("Chain version published: %s/%s %s\n", cv.ChainID, cv.NodeType, cv.Version)
	}
	return nil
}

func applyGroups(mgr *manager.Manager, m *config.Manifest) error {
	groups, err := mgr.ListGroups()
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	for _, g := range m.Groups {
		groupID := ""
		for _, existing := range groups {
			if existing.OrgID == m.OrgID && existing.Name == g.Name {
				groupID = existing.ID
				break
			}
		}

		if groupID == "" {
			now := time.Now()
			group := &types.Group{
				ID:        uuid.New().String(),
				OrgID:     m.OrgID,
				Name:      g.Name,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := mgr.PutGroup(group); err != nil {
				return fmt.Errorf("create group %s: %w", g.Name, err)
			}
			groupID = group.ID
			fmt.Printf("Group created: %s\n", g.Name)
		} else {
			fmt.Printf("Group already exists: %s (updating members)\n", g.Name)
		}

		// Member adds are idempotent on the store side
		for _, hostID := range g.Hosts {
			if err := mgr.AddGroupMember(groupID, types.HostMember{HostID: hostID}); err != nil {
				return fmt.Errorf("add host %s to group %s: %w", hostID, g.Name, err)
			}
		}
		for _, nodeID := range g.Nodes {
			if err := mgr.AddGroupMember(groupID, types.NodeMember{NodeID: nodeID}); err != nil {
				return fmt.Errorf("add node %s to group %s: %w", nodeID, g.Name, err)
			}
		}
	}
	return nil
}
