/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package linear

// Named GraphQL documents. Every request the dashboard makes goes through one
// of these; nothing builds query strings at call sites.

const queryViewer = `query GetViewer {
  viewer { id name email organization { id name urlKey } }
}`

const queryTeams = `query GetTeams {
  teams(first: 50) {
    nodes { id name key icon color }
  }
}`

const queryTeamProjects = `query GetTeamProjects($teamId: String!) {
  team(id: $teamId) {
    projects(first: 50) {
      nodes {
        id name description state progress startDate targetDate updatedAt
        lead { id name avatarUrl }
      }
    }
  }
}`

const queryTeamIssues = `query GetTeamIssues($teamId: String!, $first: Int!, $after: String) {
  team(id: $teamId) {
    issues(first: $first, after: $after) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id identifier title priority estimate
        createdAt updatedAt startedAt completedAt dueDate
        state { id name type }
        assignee { id name email avatarUrl }
        labels { nodes { id name color } }
        project { id name }
        projectMilestone { id name }
      }
    }
  }
}`

const queryWorkspaceUsers = `query GetWorkspaceUsers {
  users(first: 100) {
    nodes { id name email avatarUrl active }
  }
}`

const queryProjectMilestones = `query GetProjectMilestones($projectId: String!) {
  project(id: $projectId) {
    projectMilestones(first: 50) {
      nodes { id name description targetDate sortOrder completedAt }
    }
    issues(first: 200) {
      nodes {
        id completedAt
        state { id name type }
        projectMilestone { id }
      }
    }
  }
}`
