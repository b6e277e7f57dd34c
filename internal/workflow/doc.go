// Package workflow 定义了抽象的智能体工作流，以及把工作流编译为
// 可部署资源图的纯函数。编译阶段负责资源名消毒、模块到工具的映射
// 与自定义集成工具的合成；能力匹配仅输出参考性报告，从不阻断部署。
package workflow
