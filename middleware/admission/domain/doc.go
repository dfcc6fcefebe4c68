// Package domain define contratos e tipos de domínio da camada de admissão:
// identidade do cliente, tabela de políticas por endpoint, categorias de ataque,
// decisões (admit/deny/reject), entradas de auditoria e as portas do store compartilhado.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Todo estado mutável vive no store externo; aqui só existem valores imutáveis.
package domain
